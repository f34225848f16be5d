package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"crmgate.io/internal/user"
)

var (
	errMissingBearer = errors.New("missing bearer token")
	errBadScheme     = errors.New("invalid authorization scheme")
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths the bearer filter skips: probes, metrics and the flows that mint
// credentials in the first place.
var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/web/login",
	"/v1/web/refresh",
	"/v1/web/logout",
	"/v1/crm/token",
	"/v1/crm/refresh",
	"/",
}

type ctxKey string

const principalKey ctxKey = "httpapi_principal"

type principal struct {
	userID int64
	roles  []string
}

func (p principal) hasRole(role string) bool {
	for _, r := range p.roles {
		if r == role {
			return true
		}
	}
	return false
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

// withAuth validates the bearer access token on protected paths and loads
// the caller's current roles so handlers can gate on them.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.codec.ParseAccess(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		u, err := a.users.Get(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal{userID: u.ID, roles: u.Roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates privileged endpoints on the admin role.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	p, ok := principalFromContext(r.Context())
	if !ok || !p.hasRole(user.RoleAdmin) {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingBearer
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errBadScheme
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
