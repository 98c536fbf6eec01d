package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
)

// Authenticator resolves a bearer credential to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*token.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the request context.
func RequireAuth(authn Authenticator, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			if bearer == "" {
				unauthorized(w)
				return
			}
			p, err := authn.Authenticate(r.Context(), bearer)
			if err != nil {
				logger.Debugw("bearer rejected", "path", r.URL.Path, "err", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(token.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAbility only lets principals holding ability through. It must run
// after RequireAuth.
func RequireAbility(ability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := token.PrincipalFrom(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !p.Can(ability) {
				writeMessage(w, http.StatusForbidden, "Unauthorized action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer`)
	writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
