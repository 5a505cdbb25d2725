// Package history keeps the bounded turn history of each (user, conversation) pair.
package history

import (
	"context"
	"errors"
	"net/url"

	"github.com/sha1n/relic-rag/internal/domain"
)

// DefaultMaxTurns is the number of turns kept per conversation.
const DefaultMaxTurns = 10

// ErrInvalidKey is returned when the user or conversation ID is empty.
var ErrInvalidKey = errors.New("user and conversation id are required")

// Store is a bounded, ordered turn history per user and conversation.
// Implementations are safe for concurrent use and serialize appends to the same conversation.
type Store interface {
	// Append adds turns in order as one operation, then evicts the oldest
	// turns beyond the configured maximum.
	Append(ctx context.Context, user, conversationID string, turns ...domain.Turn) error

	// History returns the retained turns, oldest first. An unknown conversation has no turns.
	History(ctx context.Context, user, conversationID string) ([]domain.Turn, error)

	// Clear deletes a conversation.
	Clear(ctx context.Context, user, conversationID string) error
}

// Key returns the storage key for a conversation. Both parts are escaped,
// so a ':' in either cannot make two conversations share a key.
func Key(user, conversationID string) (string, error) {
	if user == "" || conversationID == "" {
		return "", ErrInvalidKey
	}
	return "chat:" + url.QueryEscape(user) + ":" + url.QueryEscape(conversationID), nil
}

func normalizeMaxTurns(n int) int {
	if n <= 0 {
		return DefaultMaxTurns
	}
	return n
}
