package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/auth"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request with its request id. Server errors
// are logged at warn level, everything else at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	{"Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';"},
	// token responses must never be cached
	{"Cache-Control", "no-store"},
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range securityHeaders {
				w.Header().Set(h[0], h[1])
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the handlers and middleware mounted by RegisterRoutes.
type Deps struct {
	Auth          *auth.Handler
	Tokens        *token.Handler
	Authenticator auth.Authenticator
	// AvatarDir is served under AvatarPath when both are set.
	AvatarDir  string
	AvatarPath string
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /.well-known/jwks.json", deps.Tokens.JWKS)
	mux.HandleFunc("POST /oauth/introspect", deps.Tokens.Introspect)

	// assertion and password logins
	mux.HandleFunc("POST /auth/token", deps.Auth.LoginViaToken)
	mux.HandleFunc("POST /auth/customers", deps.Auth.CreateCustomer)
	mux.HandleFunc("POST /auth/drivers", deps.Auth.CreateDriver)
	mux.HandleFunc("POST /auth/login", deps.Auth.Login)
	mux.HandleFunc("POST /auth/password/reset", deps.Auth.ResetPassword)

	authed := auth.RequireAuth(deps.Authenticator, logger)
	mux.Handle("GET /auth/user", authed(http.HandlerFunc(deps.Auth.User)))
	mux.Handle("GET /auth/user/verify", authed(http.HandlerFunc(deps.Auth.VerifyUser)))
	mux.Handle("POST /auth/logout", authed(http.HandlerFunc(deps.Auth.Logout)))

	driverOnly := auth.RequireAbility("driver")
	mux.Handle("GET /driver/profile", authed(driverOnly(http.HandlerFunc(deps.Auth.DriverProfile))))

	if deps.AvatarDir != "" && strings.HasPrefix(deps.AvatarPath, "/") {
		prefix := strings.TrimRight(deps.AvatarPath, "/") + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(deps.AvatarDir))))
	}

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return handler
}
