package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_sessions (id, user_id, created_at, expires_at, revoked)
		 values ($1,$2,$3,$4,false)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt)
	return err
}

// Consume is the rotation primitive: a single conditional update so two
// concurrent refreshes of one id have exactly one winner.
func (s *PGStore) Consume(ctx context.Context, id string, now time.Time) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`update refresh_sessions
		 set revoked=true, last_used_at=$2
		 where id=$1 and revoked=false and expires_at > $2
		 returning id, user_id, created_at, expires_at, last_used_at, revoked`,
		id, now)
	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.LastUsedAt, &sess.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) Revoke(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update refresh_sessions set revoked=true, last_used_at=$2
		 where id=$1 and revoked=false`, id, now)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from refresh_sessions where revoked=false and expires_at > $1`, now).Scan(&n)
	return n, err
}

func (s *PGStore) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_sessions where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PGStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_sessions where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
