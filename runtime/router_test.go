package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutRouter_Broadcast_Reaches_Only_Subscribed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	subscribed := mocks.NewMockEventSink(ctrl)
	bystander := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", subscribed)
	router.Attach("conn-2", bystander)
	router.Subscribe("conn-1", "general")

	// Only conn-1 is in the room; conn-2 must see nothing.
	notice := event.StatusNotice{Room: "general", Msg: "hello"}
	subscribed.EXPECT().Consume(gomock.Any(), notice).Return(nil)

	router.Broadcast(context.Background(), "general", notice)

	req.ElementsMatch([]chat.ChannelName{"general"}, router.Subscriptions("conn-1"))
	req.Empty(router.Subscriptions("conn-2"))
}

func TestFanoutRouter_Broadcast_Continues_Past_Failed_Recipient(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	healthy1 := mocks.NewMockEventSink(ctrl)
	broken := mocks.NewMockEventSink(ctrl)
	healthy2 := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", healthy1)
	router.Attach("conn-2", broken)
	router.Attach("conn-3", healthy2)
	for _, conn := range []chat.ConnID{"conn-1", "conn-2", "conn-3"} {
		router.Subscribe(conn, "general")
	}

	notice := event.StatusNotice{Room: "general", Msg: "hello"}
	delivered := 0
	count := func(_ context.Context, _ event.Outbound) error { delivered++; return nil }
	healthy1.EXPECT().Consume(gomock.Any(), notice).DoAndReturn(count)
	healthy2.EXPECT().Consume(gomock.Any(), notice).DoAndReturn(count)
	broken.EXPECT().Consume(gomock.Any(), notice).Return(io.ErrClosedPipe)

	// When one recipient fails, the other two still get the event
	router.Broadcast(context.Background(), "general", notice)
	req.Equal(2, delivered)
}

func TestFanoutRouter_Broadcast_Uses_Membership_At_Instant_Of_Call(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	first := mocks.NewMockEventSink(ctrl)
	late := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", first)
	router.Attach("conn-2", late)
	router.Subscribe("conn-1", "general")

	notice := event.StatusNotice{Room: "general", Msg: "hello"}
	firstSeen, lateSeen := 0, 0
	first.EXPECT().Consume(gomock.Any(), notice).
		DoAndReturn(func(_ context.Context, _ event.Outbound) error { firstSeen++; return nil }).Times(2)
	late.EXPECT().Consume(gomock.Any(), notice).
		DoAndReturn(func(_ context.Context, _ event.Outbound) error { lateSeen++; return nil })

	// conn-2 subscribes between the two broadcasts and only sees the second
	router.Broadcast(context.Background(), "general", notice)
	router.Subscribe("conn-2", "general")
	router.Broadcast(context.Background(), "general", notice)

	req.Equal(2, firstSeen)
	req.Equal(1, lateSeen)
}

func TestFanoutRouter_Unsubscribe_Stops_Delivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	sink := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", sink)
	router.Subscribe("conn-1", "general")
	router.Unsubscribe("conn-1", "general")

	// No Consume expectation: delivery after unsubscribe would fail the test
	router.Broadcast(context.Background(), "general", event.StatusNotice{Room: "general", Msg: "hello"})
}

func TestFanoutRouter_Detach_Clears_All_Subscriptions(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	sink := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", sink)
	router.Subscribe("conn-1", "general")
	router.Subscribe("conn-1", "random")

	router.Detach("conn-1")

	req.Empty(router.Subscriptions("conn-1"))
	router.Broadcast(context.Background(), "general", event.StatusNotice{Room: "general", Msg: "hello"})
	router.Broadcast(context.Background(), "random", event.StatusNotice{Room: "random", Msg: "hello"})
}

func TestFanoutRouter_BroadcastPresence_Sends_Current_Snapshot(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := NewChannelRegistry()
	router := NewFanoutRouter(testLogger(), registry, nil)

	registry.Create("general")
	registry.Join("general", "bob")
	registry.Join("general", "alice")

	sink := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", sink)
	router.Subscribe("conn-1", "general")

	var got event.Outbound
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.Outbound) error { got = e; return nil })

	router.BroadcastPresence(context.Background(), "general")

	presence, ok := got.(event.PresenceUpdated)
	req.True(ok)
	req.Equal("user_list_update", presence.Kind())
	req.Equal([]chat.Username{"alice", "bob"}, presence.Users)
}

func TestFanoutRouter_BroadcastPresence_Missing_Channel_Sends_Empty_List(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), nil)

	sink := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", sink)
	router.Subscribe("conn-1", "ghost")

	var got event.Outbound
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e event.Outbound) error { got = e; return nil })

	router.BroadcastPresence(context.Background(), "ghost")

	presence, ok := got.(event.PresenceUpdated)
	req.True(ok)
	req.NotNil(presence.Users)
	req.Empty(presence.Users)
}

func TestFanoutRouter_Broadcast_Reports_Delivery_Telemetry(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	telemetry := make(chan event.Event, 1)
	router := NewFanoutRouter(testLogger(), NewChannelRegistry(), telemetry)

	healthy := mocks.NewMockEventSink(ctrl)
	broken := mocks.NewMockEventSink(ctrl)
	router.Attach("conn-1", healthy)
	router.Attach("conn-2", broken)
	router.Subscribe("conn-1", "general")
	router.Subscribe("conn-2", "general")

	notice := event.StatusNotice{Room: "general", Msg: "hello"}
	healthy.EXPECT().Consume(gomock.Any(), notice).Return(nil)
	broken.EXPECT().Consume(gomock.Any(), notice).Return(io.ErrClosedPipe)

	router.Broadcast(context.Background(), "general", notice)

	evt := <-telemetry
	req.Equal(event.DeliveryType, evt.Type)
	delivery, ok := evt.Payload.(event.Delivery)
	req.True(ok)
	req.Equal(1, delivery.Recipients)
	req.Equal(1, delivery.Dropped)
	req.Equal("status", delivery.EventKind)
}
