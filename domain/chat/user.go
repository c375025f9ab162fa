package chat

// Username is the opaque user identity supplied by the authenticated
// session. The core treats it as a set element and never owns user records.
type Username string

// ConnID identifies one live transport connection. A user may hold several
// connections at once, so presence is counted per (channel, user, ConnID).
type ConnID string
