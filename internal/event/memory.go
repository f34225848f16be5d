package event

import (
	"context"
	"sync"
)

var _ Publisher = (*MemoryPublisher)(nil)

// MemoryPublisher records events in memory. Used in tests and as a fallback
// when no broker is configured.
type MemoryPublisher struct {
	mu       sync.Mutex
	events   []Recorded
	failWith error
}

// Recorded is one captured event.
type Recorded struct {
	Event   string
	Payload map[string]any
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWith makes every subsequent Publish return err. Pass nil to clear.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

func (p *MemoryPublisher) Publish(_ context.Context, event string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	p.events = append(p.events, Recorded{Event: event, Payload: copied})
	return nil
}

// Events returns the captured events in publish order.
func (p *MemoryPublisher) Events() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Recorded(nil), p.events...)
}

func (p *MemoryPublisher) Close() error { return nil }
