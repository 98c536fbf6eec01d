package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account"
	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/identity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
)

const passwordLoginDevice = "API Token"

// Handler exposes the authentication endpoints.
type Handler struct {
	engine   *Engine
	accounts *account.Service
	issuer   *token.Issuer
	logger   *zap.SugaredLogger
}

func NewHandler(engine *Engine, accounts *account.Service, issuer *token.Issuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{engine: engine, accounts: accounts, issuer: issuer, logger: logger}
}

// TokenRequest is the body of the assertion login endpoints.
type TokenRequest struct {
	Token      string  `json:"token"`
	DeviceName string  `json:"device_name"`
	Role       *int    `json:"role"`
	Name       string  `json:"name"`
	FCMToken   *string `json:"fcm_token"`
}

// LoginResponse is returned by every successful login.
type LoginResponse struct {
	Token      string                `json:"token"`
	UserData   *entity.Account       `json:"user_data"`
	DriverData *entity.DriverProfile `json:"driver_data,omitempty"`
	Admin      bool                  `json:"admin"`
}

// LoginViaToken logs in with an identity assertion. The role is only needed
// for the first login of a subject.
func (h *Handler) LoginViaToken(w http.ResponseWriter, r *http.Request) {
	var body TokenRequest
	if !h.decode(w, r, &body) {
		return
	}
	req := Request{Assertion: body.Token, DeviceName: body.DeviceName, Name: body.Name, FCMToken: body.FCMToken}
	if body.Role != nil {
		role := entity.Role(*body.Role)
		req.Role = &role
	}
	h.reconcile(w, r, req)
}

// CreateCustomer logs in or registers a customer.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	h.createWithRole(w, r, entity.RoleCustomer)
}

// CreateDriver logs in or registers a driver.
func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	h.createWithRole(w, r, entity.RoleDriver)
}

func (h *Handler) createWithRole(w http.ResponseWriter, r *http.Request, role entity.Role) {
	var body TokenRequest
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		h.validationError(w, map[string][]string{"name": {"The name field is required."}})
		return
	}
	h.reconcile(w, r, Request{Assertion: body.Token, DeviceName: body.DeviceName, Role: &role, Name: body.Name, FCMToken: body.FCMToken})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, req Request) {
	res, err := h.engine.Reconcile(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: res.Token, UserData: res.Account, DriverData: res.Driver, Admin: res.IsAdmin})
}

// PasswordLoginRequest is the body of the password login endpoint.
type PasswordLoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// Login authenticates with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body PasswordLoginRequest
	if !h.decode(w, r, &body) {
		return
	}
	a, err := h.accounts.AuthenticatePassword(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	device := strings.TrimSpace(body.DeviceName)
	if device == "" {
		device = passwordLoginDevice
	}
	m, err := h.issuer.Issue(r.Context(), a, device)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoginResponse{Token: m.Token, UserData: a, Admin: a.IsAdmin()})
}

// ResetPassword sends a reset link to the given email address.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), body.Email); err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			h.validationError(w, map[string][]string{"email": {"The email must be a valid email address."}})
			return
		}
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "unable to send reset link"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Reset password link sent on your email id."})
}

// User returns the authenticated account.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.Current(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// VerifyUser re-checks the status policy of the authenticated account.
func (h *Handler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.VerifyCurrentUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user_data": a})
}

// DriverProfile returns the onboarding data of the authenticated driver.
func (h *Handler) DriverProfile(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.VerifyCurrentUser(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.engine.DriverData(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"driver_data": p})
}

// Logout revokes the token used for the request.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := token.PrincipalFrom(r.Context())
	if !ok {
		h.writeError(w, account.ErrUnauthenticated)
		return
	}
	if err := h.issuer.Revoke(r.Context(), p.TokenID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

// writeError maps engine and service errors to HTTP responses. Provisioning
// is checked before issuance because a failed issuance during provisioning
// is reported as a provisioning failure.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *identity.VerificationError
	switch {
	case errors.As(err, &verr):
		h.authError(w, http.StatusForbidden, verr.Message())
	case errors.Is(err, ErrAdminNotProvisioned):
		h.authError(w, http.StatusForbidden, "User does not exist")
	case errors.Is(err, ErrInactiveAccount):
		h.authError(w, http.StatusForbidden, "User is not active. Please contact the admin.")
	case errors.Is(err, ErrInvalidRequest):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": map[string][]string{"request": {strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error()+": ")}}})
	case errors.Is(err, ErrProvisioning):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": ErrProvisioning.Error()})
	case errors.Is(err, ErrRetry):
		h.writeJSON(w, http.StatusConflict, map[string]string{"message": ErrRetry.Error()})
	case errors.Is(err, token.ErrIssuance):
		h.authError(w, http.StatusForbidden, "Error in generating token")
	case errors.Is(err, account.ErrBadCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	case errors.Is(err, account.ErrUnauthenticated), errors.Is(err, token.ErrUnauthenticated):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
	case errors.Is(err, ErrAuthentication):
		h.authError(w, http.StatusForbidden, "authentication failed")
	default:
		h.logger.Errorw("request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
	}
}

func (h *Handler) authError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"errors": map[string][]string{"authentication": {msg}}})
}

func (h *Handler) validationError(w http.ResponseWriter, fields map[string][]string) {
	h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
