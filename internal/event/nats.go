package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"crmgate.io/internal/apperr"
)

var _ Publisher = (*NATSPublisher)(nil)

// NATSPublisher publishes events as JSON to a single subject and flushes the
// connection after each publish so the caller knows the broker took the
// message before committing.
type NATSPublisher struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
}

// NATSConfig holds publisher connection settings.
type NATSConfig struct {
	URL           string
	Name          string
	Subject       string
	FlushTimeout  time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns a NATSConfig with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "crmgate-publisher",
		Subject:       "crmgate.users",
		FlushTimeout:  10 * time.Second,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSPublisher connects to the broker.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{
		conn:         conn,
		subject:      cfg.Subject,
		flushTimeout: cfg.FlushTimeout,
	}, nil
}

// Publish sends the payload and waits for the broker to acknowledge the
// flush. Any failure surfaces as ErrInfrastructure so the caller rolls back.
func (p *NATSPublisher) Publish(ctx context.Context, event string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInfrastructure, err)
	}
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["event"] = event
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("%w: publish %s: %v", apperr.ErrInfrastructure, event, err)
	}
	timeout := p.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("%w: flush %s: %v", apperr.ErrInfrastructure, event, err)
	}
	return nil
}

// Close releases the connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}
