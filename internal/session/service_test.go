package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	codec, err := token.NewCodec("test-secret", "test")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc := NewService(user.NewPGStore(db), NewPGStore(db), codec, 15*time.Minute, 7*24*time.Hour)
	return svc, mock, func() { db.Close() }
}

func userRow(t *testing.T, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := user.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}).
		AddRow(int64(42), "alice@x.com", "Alice", hash, []byte(`["ROLE_WEB_USER"]`), now, now)
}

func TestLoginSuccess(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectQuery("from users where email").WithArgs("alice@x.com").
		WillReturnRows(userRow(t, "correct"))
	mock.ExpectExec("insert into refresh_sessions").
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := svc.Login(context.Background(), "alice@x.com", "correct")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.SessionID == "" {
		t.Fatalf("expected token and session id, got %+v", res)
	}
	if res.UserID != 42 {
		t.Fatalf("unexpected user id: %d", res.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectQuery("from users where email").WithArgs("alice@x.com").
		WillReturnRows(userRow(t, "correct"))

	_, err := svc.Login(context.Background(), "alice@x.com", "wrong")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid credentials" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectQuery("from users where email").WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}))

	_, err := svc.Login(context.Background(), "nobody@x.com", "x")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid credentials" {
		t.Fatalf("unknown email must produce the identical error, got %q", apperr.Message(err))
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	oldID := "11111111-1111-1111-1111-111111111111"
	now := time.Now().UTC()
	mock.ExpectQuery("update refresh_sessions").
		WithArgs(oldID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "expires_at", "last_used_at", "revoked"}).
			AddRow(oldID, int64(42), now.Add(-time.Hour), now.Add(time.Hour), now, true))
	mock.ExpectExec("insert into refresh_sessions").
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	res, err := svc.Refresh(context.Background(), oldID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.SessionID == oldID {
		t.Fatal("refresh must rotate to a new session id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshReplayFails(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectQuery("update refresh_sessions").
		WithArgs("gone", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "expires_at", "last_used_at", "revoked"}))

	_, err := svc.Refresh(context.Background(), "gone")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error on replay, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	svc, mock, done := newTestService(t)
	defer done()

	mock.ExpectExec("update refresh_sessions set revoked=true").
		WithArgs("sid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := svc.Logout(context.Background(), "sid"); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	// Second logout hits an already-revoked row.
	mock.ExpectExec("update refresh_sessions set revoked=true").
		WithArgs("sid", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := svc.Logout(context.Background(), "sid"); !apperr.IsAuth(err) {
		t.Fatalf("expected auth error on second logout, got %v", err)
	}
}
