// Package identity talks to the external identity provider: it verifies the
// assertions clients present and administers provider-side subjects.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// Verifier validates identity assertions issued by the provider.
type Verifier interface {
	// Verify returns the subject id of a valid assertion. Failures are
	// *VerificationError and must not be retried.
	Verify(ctx context.Context, assertion string) (string, error)
	SendPasswordResetLink(ctx context.Context, email string) error
}

// Admin reads and deletes provider-side subjects.
type Admin interface {
	FetchProfile(ctx context.Context, subjectID string) (*entity.Principal, error)
	// DeleteSubject removes the subject at the provider. Used as a
	// compensating action; callers log failures and carry on.
	DeleteSubject(ctx context.Context, subjectID string) error
}

var (
	ErrSubjectNotFound = errors.New("identity: subject not found")
	ErrProvider        = errors.New("identity: provider request failed")
)

// VerificationKind distinguishes unparseable assertions from assertions that
// parsed but failed signature, expiry or audience checks.
type VerificationKind int

const (
	Malformed VerificationKind = iota + 1
	Invalid
)

func (k VerificationKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// VerificationError is returned by Verifier.Verify.
type VerificationError struct {
	Kind VerificationKind
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Kind == Malformed {
		return fmt.Sprintf("the token could not be parsed: %v", e.Err)
	}
	return fmt.Sprintf("the token is invalid: %v", e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Message is the client facing form of the error.
func (e *VerificationError) Message() string {
	msg := e.Error()
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// IsVerificationError reports whether err came from a rejected assertion.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}
