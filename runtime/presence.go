package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
)

type connState struct {
	user  chat.Username
	rooms map[chat.ChannelName]struct{}
}

// PresenceCoordinator sequences the side effects of joining and leaving:
// transport subscription, registry mutation, "joined/left" notice, and the
// refreshed presence broadcast.
//
// Membership is connection-scoped: the present-set entry for a user is
// removed only when their LAST connection to that channel goes away, so
// one closed tab never evicts a user who still has another tab open.
//
// A single mutex serializes join/leave/disconnect. Holding it across the
// registry mutation, the presence snapshot, and the delivery keeps the
// sequence atomic as a unit: no other mutation to the same channel can
// interleave between the update and the snapshot the broadcast carries.
// Delivery itself is non-blocking, so locking across it is cheap.
type PresenceCoordinator struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry *ChannelRegistry
	router   *FanoutRouter
	resolver contract.SessionResolver
	conns    map[chat.ConnID]*connState
	members  map[chat.ChannelName]map[chat.Username]map[chat.ConnID]struct{}
}

func NewPresenceCoordinator(log *slog.Logger, registry *ChannelRegistry,
	router *FanoutRouter, resolver contract.SessionResolver) *PresenceCoordinator {
	return &PresenceCoordinator{
		log:      log,
		registry: registry,
		router:   router,
		resolver: resolver,
		conns:    make(map[chat.ConnID]*connState),
		members:  make(map[chat.ChannelName]map[chat.Username]map[chat.ConnID]struct{}),
	}
}

// Join subscribes the connection to the channel and registers its user in
// the present-set. Unauthenticated connections and missing channels are
// silent no-ops: no event, no error surfaced to the caller.
func (p *PresenceCoordinator) Join(ctx context.Context, conn chat.ConnID, room chat.ChannelName) {
	user, ok := p.resolver.Resolve(conn)
	if !ok {
		p.log.Debug("join from unauthenticated connection ignored", "conn", conn)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registry.Exists(room) {
		p.log.Debug("join on missing channel ignored", "room", room, "user", user)
		return
	}

	state, ok := p.conns[conn]
	if !ok {
		state = &connState{user: user, rooms: make(map[chat.ChannelName]struct{})}
		p.conns[conn] = state
	}
	state.rooms[room] = struct{}{}

	if _, ok := p.members[room]; !ok {
		p.members[room] = make(map[chat.Username]map[chat.ConnID]struct{})
	}
	if _, ok := p.members[room][user]; !ok {
		p.members[room][user] = make(map[chat.ConnID]struct{})
	}
	p.members[room][user][conn] = struct{}{}

	p.router.Subscribe(conn, room)
	p.registry.Join(room, user)

	p.log.Info("member joined", "room", room, "user", user, "conn", conn)
	p.router.Broadcast(ctx, room, event.StatusNotice{
		Room: room,
		Msg:  fmt.Sprintf("%s has joined the channel", user),
	})
	p.router.BroadcastPresence(ctx, room)
}

// Leave is the mirror of Join for one channel.
func (p *PresenceCoordinator) Leave(ctx context.Context, conn chat.ConnID, room chat.ChannelName) {
	if _, ok := p.resolver.Resolve(conn); !ok {
		p.log.Debug("leave from unauthenticated connection ignored", "conn", conn)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaveLocked(ctx, conn, room, true)
}

// Disconnect runs the leave sequence for every channel the connection was
// subscribed to, so stale presence never survives a lost connection. It is
// exactly-once: repeated low-level disconnect signals for the same
// connection find no state and return.
func (p *PresenceCoordinator) Disconnect(ctx context.Context, conn chat.ConnID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.conns[conn]
	if !ok {
		return
	}
	for room := range state.rooms {
		p.leaveLocked(ctx, conn, room, true)
	}
	delete(p.conns, conn)
	p.router.Detach(conn)
	p.log.Info("connection cleaned up", "conn", conn)
}

// DropChannel broadcasts a final deletion notice to the room, then removes
// the channel from the registry and clears every subscription to it. The
// notice goes out first so currently-subscribed connections learn why
// subsequent events vanish.
func (p *PresenceCoordinator) DropChannel(ctx context.Context, room chat.ChannelName) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.registry.Exists(room) {
		return
	}

	p.router.Broadcast(ctx, room, event.StatusNotice{
		Room: room,
		Msg:  fmt.Sprintf("Channel %s has been deleted by admin", room),
	})

	for _, byUser := range p.members[room] {
		for connID := range byUser {
			p.router.Unsubscribe(connID, room)
			if state, ok := p.conns[connID]; ok {
				delete(state.rooms, room)
			}
		}
	}
	delete(p.members, room)
	p.registry.Delete(room)
	p.log.Info("channel dropped", "room", room)
}

// leaveLocked removes one connection from one channel. The user leaves the
// registry present-set only when this was their last connection there.
// Callers hold p.mu.
func (p *PresenceCoordinator) leaveLocked(ctx context.Context, conn chat.ConnID, room chat.ChannelName, notify bool) {
	state, ok := p.conns[conn]
	if !ok {
		return
	}
	if _, subscribed := state.rooms[room]; !subscribed {
		return
	}
	delete(state.rooms, room)
	p.router.Unsubscribe(conn, room)

	user := state.user
	lastConn := false
	if byUser, ok := p.members[room]; ok {
		if connSet, ok := byUser[user]; ok {
			delete(connSet, conn)
			if len(connSet) == 0 {
				delete(byUser, user)
				lastConn = true
			}
		}
		if len(byUser) == 0 {
			delete(p.members, room)
		}
	}

	if !lastConn {
		// Another tab keeps the user present; nothing to announce.
		return
	}

	p.registry.Leave(room, user)
	p.log.Info("member left", "room", room, "user", user, "conn", conn)

	if notify && p.registry.Exists(room) {
		p.router.Broadcast(ctx, room, event.StatusNotice{
			Room: room,
			Msg:  fmt.Sprintf("%s has left the channel", user),
		})
		p.router.BroadcastPresence(ctx, room)
	}
}
