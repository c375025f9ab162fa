// Package runtime coordinates presence, fan-out, and event dispatch.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"sort"
	"sync"

	"chat-hub/domain/chat"
)

type Set map[chat.Username]struct{}

// ChannelRegistry owns the set of channels and, per channel, the set of
// present users. Membership is fully in-memory: a process restart clears
// all presence.
//
// One mutex guards the whole registry. At this scale a global lock is
// simpler than per-channel locking and makes Delete atomic with respect to
// concurrent Join/Leave on the same name.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[chat.ChannelName]Set
	order    []chat.ChannelName // creation order, for stable listings
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[chat.ChannelName]Set),
	}
}

// Create registers an empty present-set under name. It returns false and
// changes nothing when the name is empty or already registered. Name
// equality is exact-string match.
func (r *ChannelRegistry) Create(name chat.ChannelName) bool {
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[name]; ok {
		return false
	}
	r.channels[name] = make(Set)
	r.order = append(r.order, name)
	return true
}

// Delete removes the channel and its present-set. Idempotent if absent.
func (r *ChannelRegistry) Delete(name chat.ChannelName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[name]; !ok {
		return
	}
	delete(r.channels, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Join adds user to the channel's present-set. Joining a missing channel or
// joining twice is a no-op, not an error: this tolerates races between
// channel deletion and in-flight client actions.
func (r *ChannelRegistry) Join(name chat.ChannelName, user chat.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if users, ok := r.channels[name]; ok {
		users[user] = struct{}{}
	}
}

// Leave removes user from the channel's present-set. No-op if the user or
// the channel is absent.
func (r *ChannelRegistry) Leave(name chat.ChannelName, user chat.Username) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if users, ok := r.channels[name]; ok {
		delete(users, user)
	}
}

// Exists reports whether the channel is currently registered.
func (r *ChannelRegistry) Exists(name chat.ChannelName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[name]
	return ok
}

// ListChannels returns a (name, presentCount) snapshot in channel creation
// order.
func (r *ChannelRegistry) ListChannels() []chat.ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]chat.ChannelInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, chat.ChannelInfo{
			Name:         name,
			PresentCount: len(r.channels[name]),
		})
	}
	return infos
}

// PresentUsers returns a sorted snapshot copy of the channel's present-set.
// Callers can never mutate internal state nor observe a half-applied
// join/leave through it. Nil for a missing channel.
func (r *ChannelRegistry) PresentUsers(name chat.ChannelName) []chat.Username {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users, ok := r.channels[name]
	if !ok {
		return nil
	}
	out := make([]chat.Username, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
