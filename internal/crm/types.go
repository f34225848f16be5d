// Package crm implements the machine-client token flows: a one-shot exchange
// token traded for a JWT access/refresh pair, and refresh-grant rotation
// keyed by the jti claim.
package crm

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by the stores when no live token row matches.
var ErrNotFound = errors.New("token not found")

// ExchangeToken is a one-time handoff credential. Only the SHA-256 hex of
// the raw bearer is stored; the raw secret is shown once at creation and is
// irrecoverable afterwards.
type ExchangeToken struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// RefreshToken is the stored side of a CRM refresh JWT. The id is the jti
// claim, so revocation lookups go straight by primary key.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// ExchangeStore manages exchange token persistence. ConsumeByHash is a
// conditional update so concurrent exchanges of one token have exactly one
// winner.
type ExchangeStore interface {
	Create(ctx context.Context, t *ExchangeToken) error
	// ConsumeByHash marks a live (unused, unexpired) token used and returns
	// it, or ErrNotFound.
	ConsumeByHash(ctx context.Context, hash string, now time.Time) (*ExchangeToken, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshStore manages refresh token persistence.
type RefreshStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	// ConsumeByID revokes a live (not revoked, unexpired) token and returns
	// it, or ErrNotFound. An already-consumed jti never validates again.
	ConsumeByID(ctx context.Context, id string, now time.Time) (*RefreshToken, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuthResult is a freshly minted token pair with TTLs in seconds.
type AuthResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccessTTL    int64  `json:"expires_in"`
	RefreshTTL   int64  `json:"refresh_expires_in"`
}

// ExchangeGrant is the response to minting a new exchange token. RawToken is
// the only copy of the secret that will ever exist.
type ExchangeGrant struct {
	RawToken  string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TTL       int64     `json:"expires_in"`
}
