package crm

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/permission"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

// Service runs the exchange and refresh grant flows.
type Service struct {
	users       user.Store
	perms       permission.Store
	exchange    ExchangeStore
	refresh     RefreshStore
	codec       *token.Codec
	exchangeTTL time.Duration
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time
}

// Option customizes Service construction.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users user.Store, perms permission.Store, exchange ExchangeStore, refresh RefreshStore,
	codec *token.Codec, exchangeTTL, accessTTL, refreshTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		users:       users,
		perms:       perms,
		exchange:    exchange,
		refresh:     refresh,
		codec:       codec,
		exchangeTTL: exchangeTTL,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateExchangeToken mints a one-shot handoff secret for the user. The
// raw secret is uuid "." base64(32 random bytes); only its SHA-256 hex ever
// reaches storage.
func (s *Service) GenerateExchangeToken(ctx context.Context, userID int64) (*ExchangeGrant, error) {
	if _, err := s.users.Find(ctx, userID); err != nil {
		if apperr.IsLogic(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: find user: %v", apperr.ErrInfrastructure, err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("%w: read entropy: %v", apperr.ErrInfrastructure, err)
	}
	raw := uuid.NewString() + "." + base64.StdEncoding.EncodeToString(secret)

	now := s.now().UTC()
	row := &ExchangeToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.exchangeTTL),
	}
	if err := s.exchange.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("%w: store exchange token: %v", apperr.ErrInfrastructure, err)
	}
	return &ExchangeGrant{
		RawToken:  raw,
		ExpiresAt: row.ExpiresAt,
		TTL:       int64(s.exchangeTTL / time.Second),
	}, nil
}

// ExchangeToken redeems a raw exchange token for a fresh access/refresh
// pair. Consumption is one-shot: a replay, concurrent or later, fails.
func (s *Service) ExchangeToken(ctx context.Context, raw string) (*AuthResult, error) {
	row, err := s.exchange.ConsumeByHash(ctx, hashToken(raw), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired exchange token", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("%w: consume exchange token: %v", apperr.ErrInfrastructure, err)
	}
	return s.mintPair(ctx, row.UserID)
}

// RefreshTokens rotates a refresh grant: the presented jti is revoked and a
// new pair minted for the same user with a fresh permission snapshot.
func (s *Service) RefreshTokens(ctx context.Context, rawRefresh string) (*AuthResult, error) {
	claims, err := s.codec.ParseRefresh(rawRefresh)
	if err != nil {
		if errors.Is(err, token.ErrMissingClaims) {
			return nil, fmt.Errorf("%w: invalid refresh token payload", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("%w: invalid refresh token format", apperr.ErrAuth)
	}
	if _, err := s.refresh.ConsumeByID(ctx, claims.ID, s.now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid or expired refresh token", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("%w: consume refresh token: %v", apperr.ErrInfrastructure, err)
	}
	return s.mintPair(ctx, claims.UserID)
}

// CleanupExpired batch-deletes exchange and refresh rows past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	ne, err := s.exchange.CleanupExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: cleanup exchange tokens: %v", apperr.ErrInfrastructure, err)
	}
	nr, err := s.refresh.CleanupExpired(ctx, now)
	if err != nil {
		return ne, fmt.Errorf("%w: cleanup refresh tokens: %v", apperr.ErrInfrastructure, err)
	}
	return ne + nr, nil
}

// mintPair issues an access token carrying the user's current CRM permission
// snapshot plus a refresh token backed by a new jti row. The snapshot is a
// point-in-time capsule: later permission changes do not touch issued pairs.
func (s *Service) mintPair(ctx context.Context, userID int64) (*AuthResult, error) {
	grants, err := s.perms.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", apperr.ErrInfrastructure, err)
	}
	snapshot := permission.CRMSnapshot(permission.Overlay(permission.Template(), grants))

	access, err := s.codec.CreateAccess(userID, snapshot, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign access token: %v", apperr.ErrInfrastructure, err)
	}

	now := s.now().UTC()
	jti := uuid.NewString()
	refreshJWT, err := s.codec.CreateRefresh(userID, jti, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign refresh token: %v", apperr.ErrInfrastructure, err)
	}
	if err := s.refresh.Create(ctx, &RefreshToken{
		ID:        jti,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}); err != nil {
		return nil, fmt.Errorf("%w: store refresh token: %v", apperr.ErrInfrastructure, err)
	}

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refreshJWT,
		AccessTTL:    int64(s.accessTTL / time.Second),
		RefreshTTL:   int64(s.refreshTTL / time.Second),
	}, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
