package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"crmgate.io/internal/audit"
	"crmgate.io/internal/permission"
)

type setRolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	users, err := a.users.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "permissions":
		a.handleUserPermissions(w, r, userID)
	case "roles":
		a.handleUserRoles(w, r, userID)
	case "exchange-token":
		a.handleUserExchangeToken(w, r, userID)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID int64) {
	if !requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := a.users.Permissions(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPut:
		var req map[string]permission.ScopeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.users.SetPermissions(r.Context(), userID, req); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "user.permissions.update", map[string]any{"user_id": userID})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	var req setRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roles, err := a.users.SetRoles(r.Context(), userID, req.Roles)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.roles.update", map[string]any{
		"user_id": userID,
		"roles":   roles,
	})
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleUserExchangeToken(w http.ResponseWriter, r *http.Request, userID int64) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	if !a.allow(w, r, a.limits.ExchangeUser, "exchange:user:"+strconv.FormatInt(userID, 10)) {
		return
	}
	grant, err := a.crm.GenerateExchangeToken(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "crm.exchange_token.issued", map[string]any{"user_id": userID})
	writeJSON(w, http.StatusCreated, grant)
}
