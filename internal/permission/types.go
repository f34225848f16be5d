package permission

import (
	"context"
	"database/sql"
	"time"
)

// Grant is one stored permission row: a single entity within a scope, the
// access channel it was granted through and the enabled actions.
type Grant struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Scope     string    `json:"scope"`
	Access    string    `json:"access"`
	Entity    string    `json:"entity"`
	Actions   []string  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScopeChange is the reconciled write set for one scope. An empty Grants
// slice means the scope is being cleared.
type ScopeChange struct {
	Scope  string
	Grants []Grant
}

// Store manages permission grant persistence.
type Store interface {
	// ReplaceForScope deletes every grant the user holds in the scope and
	// inserts the given rows, all inside the caller's transaction.
	ReplaceForScope(ctx context.Context, tx *sql.Tx, userID int64, scope string, grants []Grant) error
	ListByUser(ctx context.Context, userID int64) ([]Grant, error)
}
