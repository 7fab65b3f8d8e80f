package api

import (
	"context"

	"board-api/board"
	"board-api/domain"
	"board-api/session"
)

// Sessions abstracts the session manager for handlers.
type Sessions interface {
	Login(ctx context.Context, username, password string) (session.Session, error)
	Register(ctx context.Context, username, password string) (session.Session, error)
	Restore(ctx context.Context, accountID string) (domain.Account, error)
	Logout(ctx context.Context, accountID string)
	DeleteProfile(ctx context.Context, acct domain.Account, password string) error
}

// Boards hands out per-account board state.
type Boards interface {
	Board(acct domain.Account) *board.Board
	Drop(accountID string)
}

// Authenticator is implemented by types able to extract account IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate mutations.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}
