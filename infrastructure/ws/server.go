package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"chat-hub/auth"
	"chat-hub/domain/chat"
	"chat-hub/runtime"
	"chat-hub/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the websocket endpoint plus the admin HTTP surface
// (login, channel lifecycle, history). Authorization happens here, at the
// edge: the core only exposes unguarded primitives.
type Server struct {
	log        *slog.Logger
	dispatcher *runtime.Dispatcher
	router     *runtime.FanoutRouter
	service    services.IChatService
	sessions   *auth.SessionStore
	tokens     *auth.TokenManager
	validate   *validator.Validate
	bufferSize int

	mu        sync.Mutex
	firstUser chat.Username
}

func NewServer(log *slog.Logger, dispatcher *runtime.Dispatcher,
	router *runtime.FanoutRouter, service services.IChatService,
	sessions *auth.SessionStore, tokens *auth.TokenManager,
	bufferSize int) *Server {
	return &Server{
		log:        log,
		dispatcher: dispatcher,
		router:     router,
		service:    service,
		sessions:   sessions,
		tokens:     tokens,
		validate:   validator.New(),
		bufferSize: bufferSize,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /ws", s.handleSocket)
	mux.HandleFunc("GET /channels", s.handleListChannels)
	mux.HandleFunc("POST /channels", s.handleCreateChannel)
	mux.HandleFunc("DELETE /channels/{name}", s.handleDeleteChannel)
	mux.HandleFunc("GET /channels/{name}/messages", s.handleHistory)
	return mux
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// handleLogin issues a session token. There is no password: identity is
// declarative, the token only pins the username and roles for the
// connection's lifetime. The first username ever seen gets the admin role.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}

	token, err := s.tokens.Generate(req.Username, s.rolesFor(chat.Username(req.Username)))
	if err != nil {
		s.log.Error("token generation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) rolesFor(username chat.Username) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstUser == "" {
		s.firstUser = username
	}
	if s.firstUser == username {
		return []string{"admin", "user"}
	}
	return []string{"user"}
}

// handleSocket upgrades the connection, binds the token's claims to a
// fresh connection id, and runs the pumps. The read pump's return is the
// single disconnect signal; a sync.Once guards the cleanup against the
// close handshake racing the pump exit.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Validate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.log, conn, s.bufferSize)
	s.sessions.Bind(client.ID(), claims)
	s.router.Attach(client.ID(), client)
	s.log.Info("websocket connected", "conn", client.ID(), "user", claims.Username)

	ctx := r.Context()
	var once sync.Once
	disconnect := func() {
		once.Do(func() {
			s.dispatcher.Disconnect(context.WithoutCancel(ctx), client.ID())
			s.sessions.Drop(client.ID())
			client.Close()
			s.log.Info("websocket disconnected", "conn", client.ID(), "user", claims.Username)
		})
	}

	go client.writePump(ctx)
	client.readPump(ctx, func(data []byte) {
		s.handleFrame(ctx, client.ID(), data)
	})
	disconnect()
}

type inboundEnvelope struct {
	Type string `json:"type"`
}

type channelFrame struct {
	Channel string `json:"channel" validate:"required"`
}

type typingFrame struct {
	Channel string `json:"channel" validate:"required"`
	Typing  bool   `json:"typing"`
}

type messageFrame struct {
	Channel string `json:"channel" validate:"required"`
	Msg     string `json:"msg" validate:"required"`
	MsgType string `json:"msg_type" validate:"omitempty,oneof=text file"`
}

type reactionFrame struct {
	Channel   string `json:"channel" validate:"required"`
	MessageID uint64 `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

// handleFrame routes one inbound frame. Malformed frames are logged and
// dropped; the connection stays up.
func (s *Server) handleFrame(ctx context.Context, conn chat.ConnID, data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warn("bad json frame dropped", "conn", conn, "error", err)
		return
	}

	switch env.Type {
	case "join":
		frame, ok := decodeFrame[channelFrame](s, conn, data)
		if !ok {
			return
		}
		s.dispatcher.Join(ctx, chat.JoinCommand{Conn: conn, Channel: chat.ChannelName(frame.Channel)})
	case "leave":
		frame, ok := decodeFrame[channelFrame](s, conn, data)
		if !ok {
			return
		}
		s.dispatcher.Leave(ctx, chat.LeaveCommand{Conn: conn, Channel: chat.ChannelName(frame.Channel)})
	case "typing":
		frame, ok := decodeFrame[typingFrame](s, conn, data)
		if !ok {
			return
		}
		s.dispatcher.Typing(ctx, chat.TypingCommand{
			Conn:    conn,
			Channel: chat.ChannelName(frame.Channel),
			Typing:  frame.Typing,
		})
	case "message":
		frame, ok := decodeFrame[messageFrame](s, conn, data)
		if !ok {
			return
		}
		if _, err := s.dispatcher.PostMessage(ctx, chat.PostMessageCommand{
			Conn:    conn,
			Channel: chat.ChannelName(frame.Channel),
			Content: frame.Msg,
			Type:    chat.MessageType(frame.MsgType),
		}); err != nil {
			s.log.Error("message rejected", "conn", conn, "error", err)
		}
	case "reaction":
		frame, ok := decodeFrame[reactionFrame](s, conn, data)
		if !ok {
			return
		}
		if err := s.dispatcher.ToggleReaction(ctx, chat.ToggleReactionCommand{
			Conn:      conn,
			Channel:   chat.ChannelName(frame.Channel),
			MessageID: frame.MessageID,
			Emoji:     frame.Emoji,
		}); err != nil {
			s.log.Error("reaction rejected", "conn", conn, "error", err)
		}
	default:
		s.log.Warn("unknown frame type dropped", "conn", conn, "type", env.Type)
	}
}

func decodeFrame[T any](s *Server, conn chat.ConnID, data []byte) (T, bool) {
	var frame T
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.Warn("bad frame dropped", "conn", conn, "error", err)
		return frame, false
	}
	if err := s.validate.Struct(frame); err != nil {
		s.log.Warn("invalid frame dropped", "conn", conn, "error", err)
		return frame, false
	}
	return frame, true
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListChannels())
}

type createChannelRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, "invalid channel name", http.StatusBadRequest)
		return
	}
	if !s.service.CreateChannel(chat.ChannelName(req.Name)) {
		http.Error(w, "channel already exists", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	s.service.DeleteChannel(r.Context(), chat.ChannelName(r.PathValue("name")))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	query := chat.HistoryQuery{Channel: chat.ChannelName(r.PathValue("name"))}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		query.Cursor = &cursor
	}

	messages, next, err := s.service.History(r.Context(), query)
	if err != nil {
		s.log.Error("history lookup failed", "room", query.Channel, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    messages,
		"next_cursor": next,
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*auth.CustomClaims, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := s.tokens.Validate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return false
	}
	if !claims.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
