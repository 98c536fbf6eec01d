package token

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type Handler struct {
	issuer *Issuer
	logger *zap.SugaredLogger
}

func NewHandler(issuer *Issuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{issuer: issuer, logger: logger}
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.issuer.JWKS())
}

// Introspect follows RFC 7662 for access tokens and secondary handles issued
// by this service. Inactive credentials answer {"active": false}.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	tok := r.Form.Get("token")
	if tok == "" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	p, err := h.issuer.Authenticate(r.Context(), tok)
	if err != nil {
		h.logger.Debugw("introspection rejected token", "err", err)
		_ = json.NewEncoder(w).Encode(map[string]any{"active": false})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"active":     true,
		"sub":        p.AccountID,
		"jti":        p.TokenID,
		"device":     p.Device,
		"scope":      p.Abilities,
		"token_type": "access_token",
	})
}
