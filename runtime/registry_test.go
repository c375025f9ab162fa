package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-hub/domain/chat"
)

func TestChannelRegistry_Create_Then_Duplicate(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()

	// Given no channel exists
	req.Empty(registry.ListChannels())

	// When creating "general" twice
	req.True(registry.Create("general"))
	req.False(registry.Create("general"))

	// Then only one channel is registered
	req.Len(registry.ListChannels(), 1)
}

func TestChannelRegistry_Create_Empty_Name(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()

	req.False(registry.Create(""))
	req.Empty(registry.ListChannels())
}

func TestChannelRegistry_Create_Is_Case_Sensitive(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()

	// Exact-string match, no normalization
	req.True(registry.Create("general"))
	req.True(registry.Create("General"))
	req.True(registry.Create(" general"))
	req.Len(registry.ListChannels(), 3)
}

func TestChannelRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("general")

	// When the same user joins twice
	registry.Join("general", "alice")
	registry.Join("general", "alice")

	// Then the present-set holds the user once
	req.Equal([]chat.Username{"alice"}, registry.PresentUsers("general"))
}

func TestChannelRegistry_Join_Missing_Channel_Is_Noop(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()

	registry.Join("ghost", "alice")

	req.False(registry.Exists("ghost"))
	req.Nil(registry.PresentUsers("ghost"))
}

func TestChannelRegistry_List_Reflects_Presence(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("general")

	// When two users join
	registry.Join("general", "alice")
	registry.Join("general", "bob")

	// Then the listing shows ("general", 2)
	req.Equal([]chat.ChannelInfo{{Name: "general", PresentCount: 2}}, registry.ListChannels())

	// And one fewer after a leave
	registry.Leave("general", "alice")
	req.Equal([]chat.ChannelInfo{{Name: "general", PresentCount: 1}}, registry.ListChannels())
}

func TestChannelRegistry_List_Keeps_Creation_Order(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("zulu")
	registry.Create("alpha")
	registry.Create("mike")
	registry.Delete("alpha")
	registry.Create("alpha")

	names := make([]chat.ChannelName, 0, 3)
	for _, info := range registry.ListChannels() {
		names = append(names, info.Name)
	}
	req.Equal([]chat.ChannelName{"zulu", "mike", "alpha"}, names)
}

func TestChannelRegistry_Delete_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("general")
	registry.Join("general", "alice")

	registry.Delete("general")
	registry.Delete("general")

	req.False(registry.Exists("general"))
	req.Empty(registry.ListChannels())
}

func TestChannelRegistry_Create_Delete_Sequences(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()

	// The channel exists iff the net effect of the sequence is
	// "created and not yet deleted".
	req.True(registry.Create("general"))
	registry.Delete("general")
	req.False(registry.Exists("general"))

	req.True(registry.Create("general"))
	req.True(registry.Exists("general"))
	req.False(registry.Create("general"))

	registry.Delete("general")
	registry.Delete("general")
	req.False(registry.Exists("general"))
}

func TestChannelRegistry_PresentUsers_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("general")
	registry.Join("general", "alice")

	snapshot := registry.PresentUsers("general")
	snapshot[0] = "mallory"

	// Mutating the returned slice never touches internal state
	req.Equal([]chat.Username{"alice"}, registry.PresentUsers("general"))
}

func TestChannelRegistry_Concurrent_Join_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewChannelRegistry()
	registry.Create("general")

	var wg sync.WaitGroup
	users := []chat.Username{"alice", "bob", "clara", "dave"}
	for i := 0; i < 50; i++ {
		for _, u := range users {
			wg.Add(1)
			go func(u chat.Username) {
				defer wg.Done()
				registry.Join("general", u)
				registry.PresentUsers("general")
				registry.Leave("general", u)
				registry.Join("general", u)
			}(u)
		}
	}
	wg.Wait()

	// Every user ends present exactly once
	req.Equal([]chat.Username{"alice", "bob", "clara", "dave"}, registry.PresentUsers("general"))
}
