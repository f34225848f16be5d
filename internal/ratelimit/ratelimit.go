// Package ratelimit provides fixed-window request throttling keyed by
// arbitrary strings (client IP, email, user id). Limiting runs before any
// mutating work so a rejected request costs nothing downstream.
package ratelimit

import "context"

// Limiter reports whether one more request under the key is accepted.
type Limiter interface {
	Consume(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoOp accepts everything. Used when limiting is disabled.
type NoOp struct{}

func (NoOp) Consume(context.Context, string) (bool, error) { return true, nil }
func (NoOp) Close() error                                  { return nil }
