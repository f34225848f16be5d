package crm

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	_ ExchangeStore = (*PGExchangeStore)(nil)
	_ RefreshStore  = (*PGRefreshStore)(nil)
)

// PGExchangeStore implements ExchangeStore using PostgreSQL.
type PGExchangeStore struct {
	db *sql.DB
}

func NewPGExchangeStore(db *sql.DB) *PGExchangeStore {
	return &PGExchangeStore{db: db}
}

func (s *PGExchangeStore) Create(ctx context.Context, t *ExchangeToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into crm_exchange_tokens (id, user_id, token_hash, created_at, expires_at)
		 values ($1,$2,$3,$4,$5)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt)
	return err
}

// ConsumeByHash is the one-shot transition: a single conditional update
// keyed on used_at being null, so a concurrent replay loses cleanly.
func (s *PGExchangeStore) ConsumeByHash(ctx context.Context, hash string, now time.Time) (*ExchangeToken, error) {
	row := s.db.QueryRowContext(ctx,
		`update crm_exchange_tokens
		 set used_at=$2
		 where token_hash=$1 and used_at is null and expires_at > $2
		 returning id, user_id, token_hash, created_at, expires_at, used_at`,
		hash, now)
	var t ExchangeToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PGExchangeStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from crm_exchange_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PGRefreshStore implements RefreshStore using PostgreSQL.
type PGRefreshStore struct {
	db *sql.DB
}

func NewPGRefreshStore(db *sql.DB) *PGRefreshStore {
	return &PGRefreshStore{db: db}
}

func (s *PGRefreshStore) Create(ctx context.Context, t *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into crm_refresh_tokens (id, user_id, created_at, expires_at, revoked)
		 values ($1,$2,$3,$4,false)`,
		t.ID, t.UserID, t.CreatedAt, t.ExpiresAt)
	return err
}

func (s *PGRefreshStore) ConsumeByID(ctx context.Context, id string, now time.Time) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`update crm_refresh_tokens
		 set revoked=true
		 where id=$1 and revoked=false and expires_at > $2
		 returning id, user_id, created_at, expires_at, revoked`,
		id, now)
	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PGRefreshStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from crm_refresh_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
