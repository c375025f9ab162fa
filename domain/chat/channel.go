// Package chat contains core concepts of the chat system.
// Entities here carry no runtime, network, or storage logic.
package chat

// ChannelName identifies a channel. Matching is exact-string:
// no trimming, no case folding.
type ChannelName string

// ChannelInfo is a display snapshot of one channel.
type ChannelInfo struct {
	Name         ChannelName `json:"name"`
	PresentCount int         `json:"present_count"`
}
