package httpapi

import (
	"net/http"
	"strings"

	"crmgate.io/internal/audit"
	"crmgate.io/internal/obs"
)

type exchangeRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleCRMExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	res, err := a.crm.ExchangeToken(r.Context(), req.Token)
	if err != nil {
		obs.ObserveExchange("failure")
		handleServiceError(w, r, err)
		return
	}
	obs.ObserveExchange("success")
	_ = audit.LogEvent(r.Context(), "crm.token.exchanged", nil)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleCRMRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.allow(w, r, a.limits.RefreshIP, "crm:refresh:ip:"+clientIP(r)) {
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	res, err := a.crm.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "crm.token.refreshed", nil)
	writeJSON(w, http.StatusOK, res)
}
