package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-hub/auth"
	"chat-hub/domain/chat"
	"chat-hub/emojize"
	"chat-hub/mocks"
	"chat-hub/runtime"
	"chat-hub/services"
)

type serverFixture struct {
	ts    *httptest.Server
	store *mocks.MockMessageStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := runtime.NewChannelRegistry()
	router := runtime.NewFanoutRouter(log, registry, nil)
	sessions := auth.NewSessionStore()
	coordinator := runtime.NewPresenceCoordinator(log, registry, router, sessions)

	expander, err := emojize.NewExpander()
	require.NoError(t, err)
	dispatcher := runtime.NewDispatcher(log, sessions, coordinator, router, store, expander, 2000)
	service := services.NewChatService(registry, coordinator, store)
	tokens := auth.NewTokenManager("test-secret-0123456789", time.Hour)

	server := NewServer(log, dispatcher, router, service, sessions, tokens, 32)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &serverFixture{ts: ts, store: store}
}

func (f *serverFixture) login(t *testing.T, username string) string {
	t.Helper()
	req := require.New(t)

	body, _ := json.Marshal(map[string]string{"username": username})
	resp, err := http.Post(f.ts.URL+"/login", "application/json", bytes.NewReader(body))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var out map[string]string
	req.NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out["token"]
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()
	httpReq, err := http.NewRequest(method, f.ts.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	return resp
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Event, env.Data
}

func TestServer_Login_First_User_Gets_Admin(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	// Given alice logs in first, then bob
	aliceToken := f.login(t, "alice")
	bobToken := f.login(t, "bob")

	// Then only alice can create a channel
	resp := f.do(t, http.MethodPost, "/channels", bobToken, []byte(`{"name":"general"}`))
	resp.Body.Close()
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/channels", aliceToken, []byte(`{"name":"general"}`))
	resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	// And creating it again conflicts
	resp = f.do(t, http.MethodPost, "/channels", aliceToken, []byte(`{"name":"general"}`))
	resp.Body.Close()
	req.Equal(http.StatusConflict, resp.StatusCode)
}

func TestServer_Channels_Require_Authentication(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	resp, err := http.Get(f.ts.URL + "/channels")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Socket_Rejects_Invalid_Token(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Socket_Join_And_Message_Flow(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	token := f.login(t, "alice")
	resp := f.do(t, http.MethodPost, "/channels", token, []byte(`{"name":"general"}`))
	resp.Body.Close()
	req.Equal(http.StatusCreated, resp.StatusCode)

	f.store.EXPECT().SaveMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg chat.Message) (uint64, error) {
			return 7, nil
		})

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?token=" + token
	conn, dialResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	if dialResp != nil {
		dialResp.Body.Close()
	}
	defer conn.Close()

	// When joining, the notice arrives before the presence snapshot
	req.NoError(conn.WriteJSON(map[string]string{"type": "join", "channel": "general"}))

	kind, data := readFrame(t, conn)
	req.Equal("status", kind)
	var status struct {
		Msg string `json:"msg"`
	}
	req.NoError(json.Unmarshal(data, &status))
	req.Equal("alice has joined the channel", status.Msg)

	kind, data = readFrame(t, conn)
	req.Equal("user_list_update", kind)
	var presence struct {
		Users []string `json:"users"`
	}
	req.NoError(json.Unmarshal(data, &presence))
	req.Equal([]string{"alice"}, presence.Users)

	// When posting, the broadcast carries the persisted id
	req.NoError(conn.WriteJSON(map[string]string{
		"type": "message", "channel": "general", "msg": "hello",
	}))

	kind, data = readFrame(t, conn)
	req.Equal("message", kind)
	var posted struct {
		MessageID uint64 `json:"message_id"`
		Username  string `json:"username"`
		Msg       string `json:"msg"`
	}
	req.NoError(json.Unmarshal(data, &posted))
	req.Equal(uint64(7), posted.MessageID)
	req.Equal("alice", posted.Username)
	req.Equal("hello", posted.Msg)
}

func TestServer_Malformed_Frame_Keeps_Connection_Alive(t *testing.T) {
	req := require.New(t)
	f := newServerFixture(t)

	token := f.login(t, "alice")
	resp := f.do(t, http.MethodPost, "/channels", token, []byte(`{"name":"general"}`))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?token=" + token
	conn, dialResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	if dialResp != nil {
		dialResp.Body.Close()
	}
	defer conn.Close()

	// Given garbage and an incomplete frame
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.NoError(conn.WriteJSON(map[string]string{"type": "join"}))

	// Then a valid join still goes through on the same connection
	req.NoError(conn.WriteJSON(map[string]string{"type": "join", "channel": "general"}))
	kind, _ := readFrame(t, conn)
	req.Equal("status", kind)
}
