package httpapi

import (
	"net/http"
	"strings"
	"time"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/audit"
	"crmgate.io/internal/obs"
)

// sessionCookie carries the opaque refresh session id. Scoped to the web
// auth endpoints only so it never rides along on other requests.
const (
	sessionCookie     = "refresh_id"
	sessionCookiePath = "/v1/web"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type webTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (a *API) handleWebLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if !a.allow(w, r, a.limits.LoginIP, "login:ip:"+clientIP(r)) {
		return
	}
	if !a.allow(w, r, a.limits.LoginUser, "login:user:"+email) {
		return
	}

	res, err := a.sessions.Login(r.Context(), email, req.Password)
	if err != nil {
		if apperr.IsAuth(err) {
			obs.ObserveLogin("failure", "invalid_credentials")
		} else {
			obs.ObserveLogin("failure", "internal")
		}
		handleServiceError(w, r, err)
		return
	}
	obs.ObserveLogin("success", "")
	_ = audit.LogEvent(r.Context(), "web.login", map[string]any{"user_id": res.UserID})

	a.setSessionCookie(w, res.SessionID, res.ExpiresAt)
	writeJSON(w, http.StatusOK, webTokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
	})
}

func (a *API) handleWebRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requestedWithXHR(r) {
		writeError(w, http.StatusForbidden, "missing X-Requested-With header")
		return
	}
	if !a.allow(w, r, a.limits.RefreshIP, "refresh:ip:"+clientIP(r)) {
		return
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	res, err := a.sessions.Refresh(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "web.refresh", map[string]any{"user_id": res.UserID})

	a.setSessionCookie(w, res.SessionID, res.ExpiresAt)
	writeJSON(w, http.StatusOK, webTokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
	})
}

func (a *API) handleWebLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requestedWithXHR(r) {
		writeError(w, http.StatusForbidden, "missing X-Requested-With header")
		return
	}
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if err := a.sessions.Logout(r.Context(), cookie.Value); err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "web.logout", nil)

	a.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// requestedWithXHR is the CSRF guard for the cookie-bearing endpoints: a
// cross-site form post cannot set this header.
func requestedWithXHR(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

func (a *API) setSessionCookie(w http.ResponseWriter, id string, expires time.Time) {
	sameSite := http.SameSiteNoneMode
	if !a.cookieSecure {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     sessionCookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: sameSite,
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	sameSite := http.SameSiteNoneMode
	if !a.cookieSecure {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     sessionCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: sameSite,
	})
}
