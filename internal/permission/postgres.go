package permission

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"crmgate.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) ReplaceForScope(ctx context.Context, tx *sql.Tx, userID int64, scope string, grants []Grant) error {
	if _, err := tx.ExecContext(ctx,
		`delete from user_permissions where user_id=$1 and scope=$2`, userID, scope); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	for i := range grants {
		g := &grants[i]
		if g.ID == "" {
			g.ID = ids.New()
		}
		rawActions, err := json.Marshal(g.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`insert into user_permissions (id, user_id, scope, access, entity, actions, created_at, updated_at)
			 values ($1,$2,$3,$4,$5,$6,$7,$8)`,
			g.ID, g.UserID, g.Scope, g.Access, g.Entity, rawActions, g.CreatedAt, g.UpdatedAt); err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
	}
	return nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID int64) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, user_id, scope, access, entity, actions, created_at, updated_at
		 from user_permissions where user_id=$1 order by scope, entity`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var (
			g          Grant
			rawActions []byte
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Scope, &g.Access, &g.Entity, &rawActions, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if len(rawActions) > 0 {
			if err := json.Unmarshal(rawActions, &g.Actions); err != nil {
				return nil, fmt.Errorf("decode actions: %w", err)
			}
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
