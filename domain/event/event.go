package event

import "chat-hub/domain/chat"

// Outbound is an event fanned out to every connection subscribed to a
// channel. Kind is the wire-level event name the client switches on.
type Outbound interface {
	Channel() chat.ChannelName
	Kind() string
}

// StatusNotice is a human-readable channel announcement
// (user joined, user left, channel deleted).
type StatusNotice struct {
	Room chat.ChannelName `json:"-"`
	Msg  string           `json:"msg"`
}

func (e StatusNotice) Channel() chat.ChannelName { return e.Room }
func (e StatusNotice) Kind() string              { return "status" }

// PresenceUpdated carries the full present-set of a channel, read from the
// registry at the moment of broadcast.
type PresenceUpdated struct {
	Room  chat.ChannelName `json:"-"`
	Users []chat.Username  `json:"users"`
}

func (e PresenceUpdated) Channel() chat.ChannelName { return e.Room }
func (e PresenceUpdated) Kind() string              { return "user_list_update" }

// MessagePosted is broadcast only after the message was durably stored:
// MessageID is the id persistence assigned.
type MessagePosted struct {
	Room      chat.ChannelName `json:"-"`
	MessageID uint64           `json:"message_id"`
	Author    chat.Username    `json:"username"`
	Content   string           `json:"msg"`
	Type      chat.MessageType `json:"type"`
	Lang      string           `json:"lang,omitempty"`
}

func (e MessagePosted) Channel() chat.ChannelName { return e.Room }
func (e MessagePosted) Kind() string              { return "message" }

type ReactionUpdated struct {
	Room      chat.ChannelName    `json:"-"`
	MessageID uint64              `json:"message_id"`
	Reactions chat.ReactionCounts `json:"reactions"`
	Action    chat.ReactionAction `json:"action"`
	Emoji     string              `json:"emoji"`
	Author    chat.Username       `json:"username"`
}

func (e ReactionUpdated) Channel() chat.ChannelName { return e.Room }
func (e ReactionUpdated) Kind() string              { return "reaction_update" }

// TypingStatus is pure transient fan-out: no persistence, no registry
// mutation.
type TypingStatus struct {
	Room     chat.ChannelName `json:"-"`
	Username chat.Username    `json:"username"`
	Typing   bool             `json:"typing"`
}

func (e TypingStatus) Channel() chat.ChannelName { return e.Room }
func (e TypingStatus) Kind() string              { return "typing_status" }
