package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crmgate.io/internal/crm"
	"crmgate.io/internal/event"
	"crmgate.io/internal/permission"
	"crmgate.io/internal/ratelimit"
	"crmgate.io/internal/session"
	"crmgate.io/internal/token"
	"crmgate.io/internal/user"
)

func newTestAPI(t *testing.T) (*API, *token.Codec, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	codec, err := token.NewCodec("test-secret", "test")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	userStore := user.NewPGStore(db)
	permStore := permission.NewPGStore(db)
	sessions := session.NewService(userStore, session.NewPGStore(db), codec, 15*time.Minute, 7*24*time.Hour)
	crmSvc := crm.NewService(userStore, permStore, crm.NewPGExchangeStore(db), crm.NewPGRefreshStore(db),
		codec, 10*time.Minute, 24*time.Hour, 720*time.Hour)
	users := user.NewService(db, userStore, permStore, event.NewMemoryPublisher())

	limits := Limits{
		LoginIP:      ratelimit.NoOp{},
		LoginUser:    ratelimit.NoOp{},
		RefreshIP:    ratelimit.NoOp{},
		ExchangeUser: ratelimit.NoOp{},
	}
	api := New(ReadyProbe{}, sessions, crmSvc, users, codec, limits, "test",
		WithInsecureCookies())
	return api, codec, mock, func() { db.Close() }
}

func userRow(hash, roles string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}).
		AddRow(int64(42), "alice@x.com", "Alice", hash, []byte(roles), now, now)
}

func TestWebLoginSetsCookie(t *testing.T) {
	api, _, mock, done := newTestAPI(t)
	defer done()

	hash, err := user.HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	mock.ExpectQuery("from users where email").WithArgs("alice@x.com").
		WillReturnRows(userRow(hash, `["ROLE_WEB_USER"]`))
	mock.ExpectExec("insert into refresh_sessions").
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodPost, "/v1/web/login",
		strings.NewReader(`{"email":"alice@x.com","password":"correct"}`))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.TokenType != "Bearer" {
		t.Fatalf("unexpected body: %+v", body)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if !cookie.HttpOnly || cookie.Path != sessionCookiePath {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}
}

func TestWebLoginBadCredentialsIs401(t *testing.T) {
	api, _, mock, done := newTestAPI(t)
	defer done()

	mock.ExpectQuery("from users where email").WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "roles", "created_at", "updated_at"}))

	req := httptest.NewRequest(http.MethodPost, "/v1/web/login",
		strings.NewReader(`{"email":"nobody@x.com","password":"x"}`))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid credentials") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestWebRefreshRequiresXHRHeader(t *testing.T) {
	api, _, _, done := newTestAPI(t)
	defer done()

	req := httptest.NewRequest(http.MethodPost, "/v1/web/refresh", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without X-Requested-With, got %d", rec.Code)
	}
}

func TestUsersEndpointRequiresBearer(t *testing.T) {
	api, _, _, done := newTestAPI(t)
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}
}

func TestUsersEndpointRequiresAdminRole(t *testing.T) {
	api, codec, mock, done := newTestAPI(t)
	defer done()

	raw, err := codec.CreateAccess(42, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	mock.ExpectQuery("from users where id").WithArgs(int64(42)).
		WillReturnRows(userRow("hash", `["ROLE_WEB_USER"]`))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestSetPermissionsContradictionIs422(t *testing.T) {
	api, codec, mock, done := newTestAPI(t)
	defer done()

	raw, err := codec.CreateAccess(42, nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	// One fetch for the bearer filter, one inside the users service.
	mock.ExpectQuery("from users where id").WithArgs(int64(42)).
		WillReturnRows(userRow("hash", `["ROLE_ADMIN"]`))
	mock.ExpectQuery("from users where id").WithArgs(int64(42)).
		WillReturnRows(userRow("hash", `["ROLE_ADMIN"]`))

	body := `{"crm":{"access":{"web":true,"api":false},"permissions":{}}}`
	req := httptest.NewRequest(http.MethodPut, "/v1/users/42/permissions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "cannot grant access without any permissions") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api, _, _, done := newTestAPI(t)
	defer done()

	req := httptest.NewRequest(http.MethodGet, "/v1/web/login", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
