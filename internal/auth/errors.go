package auth

import (
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account"
)

var (
	// ErrAuthentication wraps every rejection of the presented identity.
	ErrAuthentication = errors.New("authentication failed")
	// ErrInactiveAccount is returned when the role's status policy rejects
	// an existing account. No token is issued.
	ErrInactiveAccount     = account.ErrInactive
	ErrAdminNotProvisioned = fmt.Errorf("%w: user does not exist", ErrAuthentication)
	// ErrProvisioning is returned when creating a new account failed and all
	// completed steps were compensated. It wraps the cause for logging.
	ErrProvisioning   = errors.New("account provisioning failed")
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRetry is returned when the subject was registered concurrently twice
	// in a row. The client may try again.
	ErrRetry = errors.New("concurrent registration in progress, retry")

	errRaceLost = errors.New("subject registered concurrently")
)
