// Package session implements the browser login flow: a short-lived access
// token paired with an opaque rotating refresh session delivered via cookie.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by the store when no live session matches.
var ErrNotFound = errors.New("session not found")

// Session is one web refresh session. The id is both the primary key and the
// bearer secret, so it carries 128 bits of entropy.
type Session struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// Store manages refresh session persistence. Consume and Revoke are
// conditional single-row updates so concurrent users of the same id have
// exactly one winner.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Consume revokes a live session (not revoked, not expired) and returns
	// it, or ErrNotFound when no such session exists.
	Consume(ctx context.Context, id string, now time.Time) (*Session, error)
	// Revoke marks a not-yet-revoked session revoked regardless of expiry,
	// or returns ErrNotFound.
	Revoke(ctx context.Context, id string, now time.Time) error
	CountActive(ctx context.Context, now time.Time) (int64, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
	// DeleteCreatedBefore drops sessions older than the cutoff regardless of
	// state, used by the retention job.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
