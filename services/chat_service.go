package services

import (
	"context"

	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/runtime"
)

type IChatService interface {
	CreateChannel(name chat.ChannelName) bool
	DeleteChannel(ctx context.Context, name chat.ChannelName)
	ListChannels() []chat.ChannelInfo
	History(ctx context.Context, query chat.HistoryQuery) ([]chat.Message, *string, error)
}

// ChatService is the administrative surface: channel lifecycle and message
// history. Real-time traffic never goes through here, it flows through the
// dispatcher.
type ChatService struct {
	registry    *runtime.ChannelRegistry
	coordinator *runtime.PresenceCoordinator
	store       contract.MessageStore
}

func NewChatService(registry *runtime.ChannelRegistry,
	coordinator *runtime.PresenceCoordinator,
	store contract.MessageStore) *ChatService {
	return &ChatService{
		registry:    registry,
		coordinator: coordinator,
		store:       store,
	}
}

func (s *ChatService) CreateChannel(name chat.ChannelName) bool {
	return s.registry.Create(name)
}

// DeleteChannel notifies subscribers before the channel disappears, then
// clears all its presence state.
func (s *ChatService) DeleteChannel(ctx context.Context, name chat.ChannelName) {
	s.coordinator.DropChannel(ctx, name)
}

func (s *ChatService) ListChannels() []chat.ChannelInfo {
	return s.registry.ListChannels()
}

func (s *ChatService) History(ctx context.Context, query chat.HistoryQuery) ([]chat.Message, *string, error) {
	return s.store.Messages(ctx, query.Channel, query.Cursor)
}
