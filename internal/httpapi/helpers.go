package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"crmgate.io/internal/apperr"
	"crmgate.io/internal/audit"
	"crmgate.io/internal/ratelimit"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleServiceError maps the error taxonomy to transport codes. Auth errors
// additionally land in the security audit log with the client address;
// infrastructure details never reach the caller.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperr.IsAuth(err):
		_ = audit.LogEvent(r.Context(), "auth.rejected", map[string]any{
			"path":   r.URL.Path,
			"reason": apperr.Message(err),
		})
		writeError(w, http.StatusUnauthorized, apperr.Message(err))
	case apperr.IsLogic(err):
		writeError(w, http.StatusUnprocessableEntity, apperr.Message(err))
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// allow consults a limiter and writes the rejection when the key is over
// budget. Returns false when the request must stop.
func (a *API) allow(w http.ResponseWriter, r *http.Request, lim ratelimit.Limiter, key string) bool {
	if lim == nil {
		return true
	}
	ok, err := lim.Consume(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if !ok {
		_ = audit.LogEvent(r.Context(), "ratelimit.rejected", map[string]any{
			"path": r.URL.Path,
		})
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
