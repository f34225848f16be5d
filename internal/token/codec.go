// Package token creates and parses the signed bearer tokens issued by the
// service. Each token kind has an explicit claims struct; parsing rejects
// tokens with missing required claims instead of duck-typing on a payload map.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken indicates a malformed token or a failed signature check.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingClaims indicates a well-signed token whose payload lacks a
	// required claim.
	ErrMissingClaims = errors.New("missing required claims")
)

// AccessClaims is the payload of an access token. Permissions carry the
// point-in-time capability snapshot embedded at issuance for CRM clients;
// web access tokens leave it empty.
type AccessClaims struct {
	UserID      int64               `json:"user_id"`
	Permissions map[string][]string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a CRM refresh token. The registered ID
// claim (jti) doubles as the storage primary key for revocation lookups.
type RefreshClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens using HS256.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithClock overrides the time source, useful for tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec for the given signing secret.
func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateAccess signs an access token for the user with an optional
// permission snapshot.
func (c *Codec) CreateAccess(userID int64, permissions map[string][]string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token: ttl must be greater than zero")
	}
	now := c.now().UTC()
	claims := AccessClaims{
		UserID:      userID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// CreateRefresh signs a refresh token carrying the given jti.
func (c *Codec) CreateRefresh(userID int64, jti string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(jti) == "" {
		return "", errors.New("token: jti is required")
	}
	if ttl <= 0 {
		return "", errors.New("token: ttl must be greater than zero")
	}
	now := c.now().UTC()
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// ParseAccess verifies the signature and expiry of an access token.
func (c *Codec) ParseAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrMissingClaims
	}
	return &claims, nil
}

// ParseRefresh verifies a refresh token and requires jti and user_id claims.
func (c *Codec) ParseRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, ErrMissingClaims
	}
	return &claims, nil
}

func (c *Codec) parse(raw string, claims jwt.Claims) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return ErrInvalidToken
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
