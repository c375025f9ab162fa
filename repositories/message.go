package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-hub/domain/chat"
)

const (
	messageSeqKey = "seq:message"
	// Badger hands out sequence numbers in batches; releasing on Close
	// keeps the gap between restarts small.
	messageSeqBandwidth = 128
)

// MessageRepository persists messages and reaction toggles in BadgerDB.
// It implements contract.MessageStore.
type MessageRepository struct {
	db            *badger.DB
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSeqKey), messageSeqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message id sequence: %w", err)
	}
	return &MessageRepository{db: db, seq: seq, log: log, limitMessages: limitMessages}, nil
}

// Close releases the id sequence. Call it before closing the DB.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

// DiskMessage is the stored representation of one message.
type DiskMessage struct {
	ID      uint64           `json:"id"`
	Channel chat.ChannelName `json:"channel"`
	Author  chat.Username    `json:"author"`
	Content string           `json:"content"`
	Type    chat.MessageType `json:"type"`
	Lang    string           `json:"lang,omitempty"`
	At      time.Time        `json:"at"`
}

// SaveMessage stores the message and returns the id it was assigned.
// The key is formatted as "msg:{channel}:{id_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order, ids are monotonic).
//  2. Keep per-channel history a single prefix scan.
func (m *MessageRepository) SaveMessage(_ context.Context, msg chat.Message) (uint64, error) {
	next, err := m.seq.Next()
	if err != nil {
		return 0, err
	}
	id := next + 1 // ids start at 1 so 0 can mean "not stored"

	record := DiskMessage{
		ID:      id,
		Channel: msg.Channel,
		Author:  msg.Author,
		Content: msg.Content,
		Type:    msg.Type,
		Lang:    msg.Lang,
		At:      msg.CreatedAt,
	}
	bytes, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(messageKey(msg.Channel, id)), bytes)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ToggleReaction flips the (message, user, emoji) triple: first call adds
// it, the next call with the same triple removes it. One key per triple
// keeps the toggle a single Get-then-Set/Delete inside one transaction.
func (m *MessageRepository) ToggleReaction(_ context.Context, messageID uint64,
	user chat.Username, emoji string) (chat.ReactionAction, error) {
	key := []byte(reactionKey(messageID, emoji, user))
	var action chat.ReactionAction

	err := m.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch err {
		case nil:
			action = chat.ReactionRemoved
			return txn.Delete(key)
		case badger.ErrKeyNotFound:
			action = chat.ReactionAdded
			return txn.Set(key, []byte(emoji))
		default:
			return err
		}
	})
	if err != nil {
		return "", err
	}
	return action, nil
}

// ReactionCounts aggregates per-emoji counts over the message's reaction
// keys. Emojis no one reacts with carry no entry.
func (m *MessageRepository) ReactionCounts(_ context.Context, messageID uint64) (chat.ReactionCounts, error) {
	counts := make(chat.ReactionCounts)
	prefix := []byte(fmt.Sprintf("react:%019d:", messageID))

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := string(it.Item().Key()[len(prefix):])
			// rest is "{emoji}:{user}" with both parts escaped
			sep := splitKeyPart(rest)
			if sep < 0 {
				continue
			}
			counts[unescapeKeyPart(rest[:sep])]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Messages retrieves a channel's history newest-first using a reverse
// prefix scan. Thanks to the padded id in the key, messages are naturally
// sorted. It stops once the configured limit is reached and returns the
// cursor to resume from.
func (m *MessageRepository) Messages(_ context.Context, channel chat.ChannelName,
	cursor *string) ([]chat.Message, *string, error) {
	var raw [][]byte
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", escapeKeyPart(string(channel)))
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible id, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, b := range raw {
		record, err := DecodeMessage(b)
		if err != nil {
			return nil, nil, err
		}
		// The record carries its channel; cross-checking it guards the
		// scan against any key ever written under an older layout.
		if record.Channel != channel {
			continue
		}
		messages = append(messages, toMessage(record))
	}
	return messages, &lastKey, nil
}

// DecodeMessage parses a stored record. Exported for the inspect tool.
func DecodeMessage(value []byte) (DiskMessage, error) {
	var record DiskMessage
	if err := json.Unmarshal(value, &record); err != nil {
		return DiskMessage{}, err
	}
	return record, nil
}

func toMessage(record DiskMessage) chat.Message {
	return chat.Message{
		ID:        record.ID,
		Channel:   record.Channel,
		Author:    record.Author,
		Content:   record.Content,
		Type:      record.Type,
		Lang:      record.Lang,
		CreatedAt: record.At,
	}
}

func messageKey(channel chat.ChannelName, id uint64) string {
	return fmt.Sprintf("msg:%s:%019d", escapeKeyPart(string(channel)), id)
}

func reactionKey(messageID uint64, emoji string, user chat.Username) string {
	return fmt.Sprintf("react:%019d:%s:%s", messageID, escapeKeyPart(emoji), escapeKeyPart(string(user)))
}

// Channel names, usernames, and emojis are opaque strings and may contain
// the ":" the key layout separates on. Escaping them keeps every component
// boundary unambiguous: "a:1" and "a" produce disjoint key prefixes, and
// the (emoji, user) pair always splits back at the right spot.

func escapeKeyPart(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ":", `\:`)
}

func unescapeKeyPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitKeyPart finds the first separator ":" that is not escaped.
func splitKeyPart(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case ':':
			return i
		}
	}
	return -1
}
