// Package auth reconciles external identities with local accounts and hands
// out device tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity/internal/identity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
)

// AccountStore is the account persistence the engine needs.
type AccountStore interface {
	GetBySubject(ctx context.Context, subjectID string) (*entity.Account, error)
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	Create(ctx context.Context, ext sqlx.ExtContext, a *entity.Account) error
	Touch(ctx context.Context, a *entity.Account, fcmToken *string) error
}

// PlaceStore creates the default places of a new customer.
type PlaceStore interface {
	Create(ctx context.Context, ext sqlx.ExtContext, places []entity.Place) error
}

// DriverStore reads driver onboarding data.
type DriverStore interface {
	FindByAccount(ctx context.Context, accountID int64) (*entity.DriverProfile, error)
	FindDocuments(ctx context.Context, profileID int64) ([]entity.DriverDocument, error)
}

// TokenIssuer mints device tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, a *entity.Account, device string) (*token.Material, error)
	IssueTx(ctx context.Context, tx *sqlx.Tx, a *entity.Account, device string) (*token.Material, error)
	Finalize(ctx context.Context, m *token.Material)
	Discard(ctx context.Context, m *token.Material)
}

// AvatarAssigner schedules the default avatar of a new account.
type AvatarAssigner interface {
	Assign(a *entity.Account)
}

// Request is a login attempt with an identity assertion.
type Request struct {
	Assertion  string
	DeviceName string
	// Role is only consulted when the subject has no account yet.
	Role     *entity.Role
	Name     string
	FCMToken *string
}

func (r Request) validate() error {
	var errs []error
	if strings.TrimSpace(r.Assertion) == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if strings.TrimSpace(r.DeviceName) == "" {
		errs = append(errs, errors.New("device_name is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Result is the outcome of a successful reconciliation.
type Result struct {
	Token   string
	Account *entity.Account
	// Driver is set for driver accounts that submitted onboarding data.
	Driver  *entity.DriverProfile
	IsAdmin bool
	Created bool
}

// Engine is the reconciliation engine.
type Engine struct {
	verifier identity.Verifier
	admin    identity.Admin
	accounts AccountStore
	places   PlaceStore
	drivers  DriverStore
	tokens   TokenIssuer
	avatars  AvatarAssigner
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// Deps groups the collaborators of an Engine.
type Deps struct {
	Verifier identity.Verifier
	Admin    identity.Admin
	Accounts AccountStore
	Places   PlaceStore
	Drivers  DriverStore
	Tokens   TokenIssuer
	Avatars  AvatarAssigner
	Logger   *zap.SugaredLogger
}

func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		verifier: d.Verifier,
		admin:    d.Admin,
		accounts: d.Accounts,
		places:   d.Places,
		drivers:  d.Drivers,
		tokens:   d.Tokens,
		avatars:  d.Avatars,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile verifies the assertion, finds or provisions the account and
// issues a token for the requested device.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	subject, err := e.verifier.Verify(ctx, req.Assertion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	for attempt := 0; ; attempt++ {
		a, err := e.accounts.GetBySubject(ctx, subject)
		if err == nil {
			return e.login(ctx, a, req)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}

		res, err := e.provision(ctx, subject, req)
		if !errors.Is(err, errRaceLost) {
			return res, err
		}
		if attempt > 0 {
			return nil, fmt.Errorf("%w: %w", ErrRetry, err)
		}
		e.logger.Infow("lost first login race, retrying as known account", "subject", subject)
	}
}

// login serves a subject that already has an account. The stored role wins
// over any role in the request.
func (e *Engine) login(ctx context.Context, a *entity.Account, req Request) (*Result, error) {
	if !a.IsActive() {
		e.logger.Infow("login rejected by status policy", "account_id", a.ID, "role", a.Role.String(), "status_id", a.StatusID)
		return nil, ErrInactiveAccount
	}
	if err := e.accounts.Touch(ctx, a, req.FCMToken); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	m, err := e.tokens.Issue(ctx, a, req.DeviceName)
	if err != nil {
		return nil, err
	}
	res := &Result{Token: m.Token, Account: a, IsAdmin: a.IsAdmin()}

	policy, _ := entity.PolicyFor(a.Role)
	if policy.DriverData {
		if res.Driver, err = e.DriverData(ctx, a.ID); err != nil {
			// the token is already live; missing enrichment is not fatal
			e.logger.Warnw("driver data lookup failed", "account_id", a.ID, "err", err)
		}
	}
	return res, nil
}

// DriverData returns the onboarding profile and documents of a driver, or
// nil when none was submitted yet.
func (e *Engine) DriverData(ctx context.Context, accountID int64) (*entity.DriverProfile, error) {
	p, err := e.drivers.FindByAccount(ctx, accountID)
	if err != nil || p == nil {
		return nil, err
	}
	docs, err := e.drivers.FindDocuments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Documents = docs
	return p, nil
}

// provision creates the account of a first-time subject. Every completed
// step is compensated when a later one fails, including deletion of the
// provider-side subject.
func (e *Engine) provision(ctx context.Context, subject string, req Request) (*Result, error) {
	if req.Role == nil {
		return nil, fmt.Errorf("%w: role is required for new accounts", ErrInvalidRequest)
	}
	role := *req.Role
	policy, err := entity.PolicyFor(role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !policy.AutoProvision {
		return nil, ErrAdminNotProvisioned
	}

	// once started, provisioning runs to completion or full compensation
	ctx = context.WithoutCancel(ctx)

	var (
		tx        *sqlx.Tx
		principal *entity.Principal
		a         *entity.Account
		m         *token.Material
	)
	s := newSaga(e.logger)
	s.add("identity", nil, func(ctx context.Context, cause error) error {
		if errors.Is(cause, errRaceLost) {
			// the subject now belongs to the winner's account
			return nil
		}
		e.logger.Warnw("deleting provider subject after failed provisioning", "subject", subject, "cause", cause)
		return e.admin.DeleteSubject(ctx, subject)
	})
	s.add("begin", func(ctx context.Context) error {
		var err error
		tx, err = e.accounts.BeginTx(ctx)
		return err
	}, func(context.Context, error) error {
		return tx.Rollback()
	})
	s.add("fetch profile", func(ctx context.Context) error {
		var err error
		principal, err = e.admin.FetchProfile(ctx, subject)
		return err
	}, nil)
	s.add("create account", func(ctx context.Context) error {
		a = &entity.Account{
			SubjectID: subject,
			Role:      role,
			StatusID:  policy.DefaultStatus,
			Name:      strings.TrimSpace(req.Name),
			FCMToken:  req.FCMToken,
		}
		if principal.Email != "" {
			email := strings.ToLower(principal.Email)
			a.Email = &email
		}
		if principal.PasswordHash != "" {
			hash := principal.PasswordHash
			a.PasswordHash = &hash
		}
		err := e.accounts.Create(ctx, tx, a)
		if errors.Is(err, repo.ErrDuplicateSubject) {
			return fmt.Errorf("%w: %w", errRaceLost, err)
		}
		return err
	}, nil)
	if policy.DefaultPlaces {
		s.add("default places", func(ctx context.Context) error {
			return e.places.Create(ctx, tx, entity.DefaultPlaces(a.ID, e.now()))
		}, nil)
	}
	s.add("issue token", func(ctx context.Context) error {
		var err error
		m, err = e.tokens.IssueTx(ctx, tx, a, req.DeviceName)
		return err
	}, func(ctx context.Context, _ error) error {
		e.tokens.Discard(ctx, m)
		return nil
	})
	s.add("commit", func(context.Context) error {
		return tx.Commit()
	}, nil)

	if err := s.run(ctx); err != nil {
		if errors.Is(err, errRaceLost) {
			return nil, err
		}
		e.logger.Errorw("account provisioning failed", "subject", subject, "role", role.String(), "err", err)
		return nil, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	e.tokens.Finalize(ctx, m)
	if e.avatars != nil {
		e.avatars.Assign(a)
	}
	e.logger.Infow("account provisioned", "account_id", a.ID, "subject", subject, "role", role.String())
	return &Result{Token: m.Token, Account: a, IsAdmin: a.IsAdmin(), Created: true}, nil
}

// ResetPassword asks the provider to email a password reset link.
func (e *Engine) ResetPassword(ctx context.Context, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidRequest)
	}
	if err := e.verifier.SendPasswordResetLink(ctx, addr.Address); err != nil {
		e.logger.Warnw("password reset link failed", "err", err)
		return fmt.Errorf("send reset link: %w", err)
	}
	return nil
}
