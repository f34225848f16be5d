// Package user holds user accounts, the role hierarchy and the service that
// coordinates permission and role mutations with event publishing.
package user

import (
	"context"
	"database/sql"
	"time"
)

// User represents an account owned by the upstream identity component. The
// password credential is stored as a bcrypt hash.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store manages user persistence.
type Store interface {
	Find(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	// UpdateRoles rewrites the role set inside the caller's transaction.
	UpdateRoles(ctx context.Context, tx *sql.Tx, id int64, roles []string) error
}
