package chat

// ReactionAction reports what a toggle did: first reaction with a given
// emoji adds it, reacting again with the same emoji removes it.
type ReactionAction string

const (
	ReactionAdded   ReactionAction = "add"
	ReactionRemoved ReactionAction = "remove"
)

// ReactionCounts maps emoji to the number of users currently reacting
// with it on one message. Emojis with zero reactions carry no key.
type ReactionCounts map[string]int
