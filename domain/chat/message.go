package chat

import "time"

type MessageType string

const (
	TypeText MessageType = "text"
	TypeFile MessageType = "file"
)

// Message represents an immutable chat event routed by the core.
// Persistence assigns the numeric ID; a zero ID means "not yet stored".
type Message struct {
	ID        uint64      `json:"message_id"`
	Channel   ChannelName `json:"channel"`
	Author    Username    `json:"username"`
	Content   string      `json:"msg"`
	Type      MessageType `json:"type"`
	Lang      string      `json:"lang,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
