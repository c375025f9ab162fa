package chat

import "time"

// Commands are inbound intents carried from the transport to the dispatcher.
// They identify the acting connection, never the acting user: identity is
// resolved per command through the session lookup, not taken from ambient
// state.

type JoinCommand struct {
	Conn    ConnID
	Channel ChannelName
}

type LeaveCommand struct {
	Conn    ConnID
	Channel ChannelName
}

type TypingCommand struct {
	Conn    ConnID
	Channel ChannelName
	Typing  bool
}

type PostMessageCommand struct {
	Conn      ConnID
	Channel   ChannelName
	Content   string
	Type      MessageType
	CreatedAt time.Time
}

type ToggleReactionCommand struct {
	Conn      ConnID
	Channel   ChannelName
	MessageID uint64
	Emoji     string
}

type HistoryQuery struct {
	Channel ChannelName
	Cursor  *string
}
