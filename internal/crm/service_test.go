package crm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/permission"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

func newTestService(t *testing.T) (*Service, *token.Codec, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	codec, err := token.NewCodec("test-secret", "test")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc := NewService(user.NewPGStore(db), permission.NewPGStore(db),
		NewPGExchangeStore(db), NewPGRefreshStore(db), codec,
		10*time.Minute, 24*time.Hour, 720*time.Hour)
	return svc, codec, mock, func() { db.Close() }
}

func expectUserFound(mock sqlmock.Sqlmock, id int64) {
	now := time.Now().UTC()
	mock.ExpectQuery("from users where id").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}).
			AddRow(id, "bot@x.com", "Bot", "hash", []byte(`["ROLE_API_USER"]`), now, now))
}

func expectMintPair(mock sqlmock.Sqlmock, userID int64) {
	now := time.Now().UTC()
	mock.ExpectQuery("from user_permissions where user_id").WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "scope", "access", "entity", "actions", "created_at", "updated_at"}).
			AddRow("grant-1", userID, permission.ScopeCRM, permission.AccessAPI, permission.EntityLead,
				[]byte(`["read","write"]`), now, now))
	mock.ExpectExec("insert into crm_refresh_tokens").
		WithArgs(sqlmock.AnyArg(), userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestGenerateExchangeTokenFormat(t *testing.T) {
	svc, _, mock, done := newTestService(t)
	defer done()

	expectUserFound(mock, 42)
	mock.ExpectExec("insert into crm_exchange_tokens").
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	grant, err := svc.GenerateExchangeToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("GenerateExchangeToken: %v", err)
	}
	if strings.Count(grant.RawToken, ".") != 1 {
		t.Fatalf("raw token must contain exactly one separator: %q", grant.RawToken)
	}
	if grant.TTL != 600 {
		t.Fatalf("expected 600s ttl, got %d", grant.TTL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGenerateExchangeTokenUnknownUser(t *testing.T) {
	svc, _, mock, done := newTestService(t)
	defer done()

	mock.ExpectQuery("from users where id").WithArgs(int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}))

	_, err := svc.GenerateExchangeToken(context.Background(), 999)
	if !apperr.IsLogic(err) {
		t.Fatalf("expected logic error, got %v", err)
	}
	if apperr.Message(err) != "user not found" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}

func TestExchangeTokenIssuesPair(t *testing.T) {
	svc, codec, mock, done := newTestService(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("update crm_exchange_tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "used_at"}).
			AddRow("ex-1", int64(42), "hash", now, now.Add(time.Minute), now))
	expectMintPair(mock, 42)

	res, err := svc.ExchangeToken(context.Background(), "raw-token")
	if err != nil {
		t.Fatalf("ExchangeToken: %v", err)
	}
	if res.AccessTTL != 86400 {
		t.Fatalf("expected access ttl 86400, got %d", res.AccessTTL)
	}
	if res.RefreshTTL != 2592000 {
		t.Fatalf("expected refresh ttl 2592000, got %d", res.RefreshTTL)
	}

	claims, err := codec.ParseAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("unexpected user id: %d", claims.UserID)
	}
	if got := claims.Permissions[permission.EntityLead]; len(got) != 2 {
		t.Fatalf("access token must carry the permission snapshot: %v", claims.Permissions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExchangeTokenOneShot(t *testing.T) {
	svc, _, mock, done := newTestService(t)
	defer done()

	// The conditional update matches no row the second time around.
	mock.ExpectQuery("update crm_exchange_tokens").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "used_at"}))

	_, err := svc.ExchangeToken(context.Background(), "already-used")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid or expired exchange token" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}

func TestRefreshTokensRotates(t *testing.T) {
	svc, codec, mock, done := newTestService(t)
	defer done()

	raw, err := codec.CreateRefresh(42, "jti-old", time.Hour)
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}

	now := time.Now().UTC()
	mock.ExpectQuery("update crm_refresh_tokens").
		WithArgs("jti-old", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "expires_at", "revoked"}).
			AddRow("jti-old", int64(42), now.Add(-time.Hour), now.Add(time.Hour), true))
	expectMintPair(mock, 42)

	res, err := svc.RefreshTokens(context.Background(), raw)
	if err != nil {
		t.Fatalf("RefreshTokens: %v", err)
	}
	claims, err := codec.ParseRefresh(res.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if claims.ID == "jti-old" {
		t.Fatal("rotation must mint a fresh jti")
	}
}

func TestRefreshTokensRejectsGarbage(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.RefreshTokens(context.Background(), "not-a-jwt")
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid refresh token format" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}

func TestRefreshTokensRejectsMissingJTI(t *testing.T) {
	svc, codec, _, done := newTestService(t)
	defer done()

	// Well-signed but carries no jti claim.
	raw, err := codec.CreateAccess(42, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	_, err = svc.RefreshTokens(context.Background(), raw)
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid refresh token payload" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}

func TestRefreshTokensRevokedJTIFails(t *testing.T) {
	svc, codec, mock, done := newTestService(t)
	defer done()

	raw, err := codec.CreateRefresh(42, "jti-revoked", time.Hour)
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}
	mock.ExpectQuery("update crm_refresh_tokens").
		WithArgs("jti-revoked", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "expires_at", "revoked"}))

	_, err = svc.RefreshTokens(context.Background(), raw)
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if apperr.Message(err) != "invalid or expired refresh token" {
		t.Fatalf("unexpected message: %q", apperr.Message(err))
	}
}
