package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
)

// FanoutRouter maps outbound events to the set of live connections
// subscribed to a channel, independent of transport. It is the only
// component that touches sinks; everything above it reasons in terms of
// channels and connection ids.
//
// Delivery is at-least-once to every connection subscribed at the instant
// of the call. There is no ordering guarantee across distinct recipients;
// FIFO per recipient is provided by each sink's own buffered queue.
type FanoutRouter struct {
	mu       sync.RWMutex
	sinks    map[chat.ConnID]contract.EventSink
	rooms    map[chat.ChannelName]map[chat.ConnID]struct{}
	registry *ChannelRegistry

	log       *slog.Logger
	telemetry chan<- event.Event
}

func NewFanoutRouter(log *slog.Logger, registry *ChannelRegistry, telemetry chan<- event.Event) *FanoutRouter {
	return &FanoutRouter{
		sinks:     make(map[chat.ConnID]contract.EventSink),
		rooms:     make(map[chat.ChannelName]map[chat.ConnID]struct{}),
		registry:  registry,
		log:       log,
		telemetry: telemetry,
	}
}

// Attach registers a connection's sink. A connection must be attached
// before it can subscribe to rooms.
func (r *FanoutRouter) Attach(conn chat.ConnID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[conn] = sink
}

// Detach removes the sink and every room subscription the connection held.
func (r *FanoutRouter) Detach(conn chat.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, conn)
	for room, members := range r.rooms {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Subscribe adds the connection to a room. The room entry is initialized
// on the fly; no empty sets are left behind on unsubscribe, to prevent
// leaks over time.
func (r *FanoutRouter) Subscribe(conn chat.ConnID, room chat.ChannelName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[chat.ConnID]struct{})
	}
	r.rooms[room][conn] = struct{}{}
}

func (r *FanoutRouter) Unsubscribe(conn chat.ConnID, room chat.ChannelName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Subscriptions returns the rooms a connection is currently subscribed to.
func (r *FanoutRouter) Subscriptions(conn chat.ConnID) []chat.ChannelName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []chat.ChannelName
	for room, members := range r.rooms {
		if _, ok := members[conn]; ok {
			out = append(out, room)
		}
	}
	return out
}

// Broadcast delivers e to every connection subscribed to room right now,
// and only those. A failed recipient is logged and skipped; one slow or
// dead connection never aborts delivery to the rest.
func (r *FanoutRouter) Broadcast(ctx context.Context, room chat.ChannelName, e event.Outbound) {
	recipients := r.roomSinks(room)

	start := time.Now()
	dropped := 0
	for _, sink := range recipients {
		if err := sink.Consume(ctx, e); err != nil {
			dropped++
			r.log.Warn("recipient delivery failed, continuing fanout",
				"room", room, "kind", e.Kind(), "error", err)
		}
	}

	r.report(event.Delivery{
		Room:       room,
		EventKind:  e.Kind(),
		Recipients: len(recipients) - dropped,
		Dropped:    dropped,
		At:         start,
	})
}

// BroadcastPresence reads the registry snapshot and fans out the full
// present-set. Callers invoke it after the registry mutation, never
// before, so the payload reflects the state at the moment of broadcast.
func (r *FanoutRouter) BroadcastPresence(ctx context.Context, room chat.ChannelName) {
	users := r.registry.PresentUsers(room)
	if users == nil {
		users = []chat.Username{}
	}
	r.Broadcast(ctx, room, event.PresenceUpdated{Room: room, Users: users})
}

// roomSinks resolves the room's member connections into live sinks.
// A member without an attached sink is skipped: its transport is already
// tearing down.
func (r *FanoutRouter) roomSinks(room chat.ChannelName) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]contract.EventSink, 0, len(members))
	for conn := range members {
		if sink, exists := r.sinks[conn]; exists {
			out = append(out, sink)
		}
	}
	return out
}

func (r *FanoutRouter) report(d event.Delivery) {
	if r.telemetry == nil {
		return
	}
	select {
	case r.telemetry <- event.Event{Type: event.DeliveryType, CreatedAt: time.Now().UTC(), Payload: d}:
	default:
		r.log.Debug("Observability telemetry event lost")
	}
}
