package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/event"
	"crmgate.io/internal/permission"
)

// Service coordinates user mutations: it reconciles permission trees, rewrites
// role sets and publishes change events inside the same database transaction
// boundary, so a broker failure leaves storage untouched.
type Service struct {
	db        *sql.DB
	users     Store
	perms     permission.Store
	publisher event.Publisher
	hierarchy Hierarchy
	now       func() time.Time
}

// Option customizes Service construction.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHierarchy overrides the role hierarchy.
func WithHierarchy(h Hierarchy) Option {
	return func(s *Service) { s.hierarchy = h }
}

func NewService(db *sql.DB, users Store, perms permission.Store, publisher event.Publisher, opts ...Option) *Service {
	s := &Service{
		db:        db,
		users:     users,
		perms:     perms,
		publisher: publisher,
		hierarchy: DefaultHierarchy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.users.List(ctx)
}

// Get returns one user by id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.users.Find(ctx, id)
}

// Permissions returns the user's full permission view: the complete schema
// with stored grants overlaid.
func (s *Service) Permissions(ctx context.Context, userID int64) (permission.View, error) {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return nil, err
	}
	grants, err := s.perms.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %v", apperr.ErrInfrastructure, err)
	}
	return permission.Overlay(permission.Template(), grants), nil
}

// SetPermissions replaces the user's grants for every scope present in the
// request and publishes a permissions-changed event before committing. The
// database write and the event stand or fall together.
func (s *Service) SetPermissions(ctx context.Context, userID int64, req map[string]permission.ScopeRequest) error {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return err
	}
	now := s.now().UTC()
	changes, err := permission.Reconcile(userID, req, now)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", apperr.ErrInfrastructure, err)
	}
	for _, change := range changes {
		if err := s.perms.ReplaceForScope(ctx, tx, userID, change.Scope, change.Grants); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: replace grants: %v", apperr.ErrInfrastructure, err)
		}
	}
	if err := s.publisher.Publish(ctx, event.PermissionsChanged, map[string]any{
		"user_id":    userID,
		"changed_at": now.Format(time.RFC3339),
	}); err != nil {
		tx.Rollback()
		return infraErr(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", apperr.ErrInfrastructure, err)
	}
	return nil
}

// SetRoles collapses the requested role set against the hierarchy, stores it
// and publishes a roles-changed event before committing.
func (s *Service) SetRoles(ctx context.Context, userID int64, roles []string) ([]string, error) {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return nil, err
	}
	collapsed := s.hierarchy.Collapse(roles)
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", apperr.ErrInfrastructure, err)
	}
	if err := s.users.UpdateRoles(ctx, tx, userID, collapsed); err != nil {
		tx.Rollback()
		if apperr.IsLogic(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: update roles: %v", apperr.ErrInfrastructure, err)
	}
	if err := s.publisher.Publish(ctx, event.RolesChanged, map[string]any{
		"user_id":    userID,
		"new_roles":  collapsed,
		"changed_at": now.Format(time.RFC3339),
	}); err != nil {
		tx.Rollback()
		return nil, infraErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", apperr.ErrInfrastructure, err)
	}
	return collapsed, nil
}

// infraErr keeps an already-classified error as is and wraps anything else.
func infraErr(err error) error {
	if errors.Is(err, apperr.ErrInfrastructure) {
		return err
	}
	return fmt.Errorf("%w: publish event: %v", apperr.ErrInfrastructure, err)
}
