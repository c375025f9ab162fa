package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"

	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/emojize"
	"chat-hub/errors"
)

// Dispatcher is the single authenticated entry point for inbound real-time
// events. Every entry resolves the acting identity through the injected
// session lookup; events from connections with no bound identity are
// dropped silently, never answered, so nothing about auth state leaks to
// anonymous sockets.
type Dispatcher struct {
	log              *slog.Logger
	resolver         contract.SessionResolver
	presence         *PresenceCoordinator
	router           contract.Broadcaster
	store            contract.MessageStore
	expander         *emojize.Expander
	maxContentLength int
}

func NewDispatcher(log *slog.Logger, resolver contract.SessionResolver,
	presence *PresenceCoordinator, router contract.Broadcaster,
	store contract.MessageStore, expander *emojize.Expander,
	maxContentLength int) *Dispatcher {
	return &Dispatcher{
		log:              log,
		resolver:         resolver,
		presence:         presence,
		router:           router,
		store:            store,
		expander:         expander,
		maxContentLength: maxContentLength,
	}
}

func (d *Dispatcher) Join(ctx context.Context, cmd chat.JoinCommand) {
	d.presence.Join(ctx, cmd.Conn, cmd.Channel)
}

func (d *Dispatcher) Leave(ctx context.Context, cmd chat.LeaveCommand) {
	d.presence.Leave(ctx, cmd.Conn, cmd.Channel)
}

func (d *Dispatcher) Disconnect(ctx context.Context, conn chat.ConnID) {
	d.presence.Disconnect(ctx, conn)
}

// Typing is pure transient fan-out: no persistence, no registry mutation.
func (d *Dispatcher) Typing(ctx context.Context, cmd chat.TypingCommand) {
	user, ok := d.resolver.Resolve(cmd.Conn)
	if !ok {
		return
	}
	d.router.Broadcast(ctx, cmd.Channel, event.TypingStatus{
		Room:     cmd.Channel,
		Username: user,
		Typing:   cmd.Typing,
	})
}

// PostMessage expands shortcodes, persists, then broadcasts. The order is
// a hard contract: a message that was not durably recorded is never
// broadcast, or clients would render state that disappears on reload.
// Persistence failures are surfaced to the caller.
func (d *Dispatcher) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (uint64, error) {
	user, ok := d.resolver.Resolve(cmd.Conn)
	if !ok {
		return 0, nil
	}

	msgType := cmd.Type
	if msgType == "" {
		msgType = chat.TypeText
	}

	content := cmd.Content
	lang := ""
	if msgType == chat.TypeText {
		content = d.expander.Expand(content)
		info := whatlanggo.Detect(content)
		lang = info.Lang.Iso6391()
	}
	if d.maxContentLength > 0 && len(content) > d.maxContentLength {
		return 0, errors.ErrContentTooLong
	}

	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Suspension point: no registry lock is held across the store call.
	id, err := d.store.SaveMessage(ctx, chat.Message{
		Channel:   cmd.Channel,
		Author:    user,
		Content:   content,
		Type:      msgType,
		Lang:      lang,
		CreatedAt: createdAt,
	})
	if err != nil {
		d.log.Error("message not stored, skipping broadcast",
			"room", cmd.Channel, "user", user, "error", err)
		return 0, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	d.router.Broadcast(ctx, cmd.Channel, event.MessagePosted{
		Room:      cmd.Channel,
		MessageID: id,
		Author:    user,
		Content:   content,
		Type:      msgType,
		Lang:      lang,
	})
	return id, nil
}

// ToggleReaction flips the (message, user, emoji) reaction and broadcasts
// the refreshed counts together with what the toggle did.
func (d *Dispatcher) ToggleReaction(ctx context.Context, cmd chat.ToggleReactionCommand) error {
	user, ok := d.resolver.Resolve(cmd.Conn)
	if !ok {
		return nil
	}

	action, err := d.store.ToggleReaction(ctx, cmd.MessageID, user, cmd.Emoji)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	counts, err := d.store.ReactionCounts(ctx, cmd.MessageID)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	d.router.Broadcast(ctx, cmd.Channel, event.ReactionUpdated{
		Room:      cmd.Channel,
		MessageID: cmd.MessageID,
		Reactions: counts,
		Action:    action,
		Emoji:     cmd.Emoji,
		Author:    user,
	})
	return nil
}
