package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

// Result is the outcome of a successful login or refresh.
type Result struct {
	AccessToken string    `json:"access_token"`
	SessionID   string    `json:"-"`
	UserID      int64     `json:"-"`
	ExpiresAt   time.Time `json:"-"`
}

// Service runs the login/refresh/logout state machine.
type Service struct {
	users      user.Store
	sessions   Store
	codec      *token.Codec
	accessTTL  time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// Option customizes Service construction.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users user.Store, sessions Store, codec *token.Codec, accessTTL, sessionTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		users:      users,
		sessions:   sessions,
		codec:      codec,
		accessTTL:  accessTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies the credentials and opens a new refresh session. Unknown
// email and wrong password produce the same error, and the unknown-email
// path still burns a hash comparison so both cost the same.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.IsLogic(err) {
			user.BurnPassword(password)
			return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("%w: find user: %v", apperr.ErrInfrastructure, err)
	}
	if err := user.VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, fmt.Errorf("%w: invalid credentials", apperr.ErrAuth)
	}
	return s.open(ctx, u.ID)
}

// Refresh rotates a session: the presented id is revoked in one conditional
// update and a successor is created. A stolen id replayed after one use sees
// the same error as a bogus one.
func (s *Service) Refresh(ctx context.Context, sessionID string) (*Result, error) {
	now := s.now().UTC()
	old, err := s.sessions.Consume(ctx, sessionID, now)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: invalid refresh token", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("%w: consume session: %v", apperr.ErrInfrastructure, err)
	}
	return s.open(ctx, old.UserID)
}

// Logout revokes the session. A second call with the same id fails because
// the session is already revoked.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID, s.now().UTC()); err != nil {
		if err == ErrNotFound {
			return fmt.Errorf("%w: invalid refresh token", apperr.ErrAuth)
		}
		return fmt.Errorf("%w: revoke session: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

func (s *Service) open(ctx context.Context, userID int64) (*Result, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create session: %v", apperr.ErrInfrastructure, err)
	}
	access, err := s.codec.CreateAccess(userID, nil, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token: %v", apperr.ErrInfrastructure, err)
	}
	return &Result{
		AccessToken: access,
		SessionID:   sess.ID,
		UserID:      userID,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}
