package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-hub/domain/chat"
	"chat-hub/errors"
)

const testSecret = "test_secret_key_for_unit_tests_only"

func TestTokenManager_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager(testSecret, time.Hour)

	token, err := manager.Generate("alice", []string{"user", "admin"})
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := manager.Validate(token)
	req.NoError(err)
	req.Equal("alice", claims.Username)
	req.True(claims.IsAdmin())
}

func TestTokenManager_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager(testSecret, time.Hour)
	other := NewTokenManager("another_secret_entirely_here", time.Hour)

	token, err := manager.Generate("alice", []string{"user"})
	req.NoError(err)

	_, err = other.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenManager_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager(testSecret, -time.Minute)

	token, err := manager.Generate("alice", []string{"user"})
	req.NoError(err)

	_, err = manager.Validate(token)
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestTokenManager_Rejects_Garbage(t *testing.T) {
	req := require.New(t)
	manager := NewTokenManager(testSecret, time.Hour)

	_, err := manager.Validate("not.a.token")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestSessionStore_Bind_Resolve_Drop(t *testing.T) {
	req := require.New(t)
	store := NewSessionStore()
	conn := chat.ConnID("conn-1")

	// Given no binding, the connection is unauthenticated
	_, ok := store.Resolve(conn)
	req.False(ok)

	// When claims are bound
	store.Bind(conn, &CustomClaims{Username: "alice", Roles: []string{"user"}})

	// Then the identity resolves
	user, ok := store.Resolve(conn)
	req.True(ok)
	req.Equal(chat.Username("alice"), user)

	// And dropping is final and idempotent
	store.Drop(conn)
	store.Drop(conn)
	_, ok = store.Resolve(conn)
	req.False(ok)
}

func TestCustomClaims_IsAdmin(t *testing.T) {
	req := require.New(t)
	req.True((&CustomClaims{Roles: []string{"user", "admin"}}).IsAdmin())
	req.False((&CustomClaims{Roles: []string{"user"}}).IsAdmin())
	req.False((&CustomClaims{}).IsAdmin())
}
