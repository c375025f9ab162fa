//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-hub/domain/chat"
	"chat-hub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's inbox. Consume must not block: a full
// connection buffer is reported as an error so fan-out can continue with
// the remaining recipients.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// SessionResolver maps a connection to its authenticated user identity.
// The second return is false for connections with no bound identity;
// callers treat those events as silent no-ops.
type SessionResolver interface {
	Resolve(conn chat.ConnID) (chat.Username, bool)
}

// MessageStore is the external persistence collaborator. Calls are
// suspension points: the core never holds a registry lock across them.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg chat.Message) (uint64, error)
	ToggleReaction(ctx context.Context, messageID uint64, user chat.Username, emoji string) (chat.ReactionAction, error)
	ReactionCounts(ctx context.Context, messageID uint64) (chat.ReactionCounts, error)
	Messages(ctx context.Context, channel chat.ChannelName, cursor *string) ([]chat.Message, *string, error)
}

// Broadcaster is the room-scoped side of the Fan-out Router as seen by the
// coordinator and the dispatcher.
type Broadcaster interface {
	Broadcast(ctx context.Context, room chat.ChannelName, e event.Outbound)
	BroadcastPresence(ctx context.Context, room chat.ChannelName)
}
