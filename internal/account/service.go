package account

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrInactive        = errors.New("user is not active, please contact the admin")
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Service serves the account operations that do not reconcile identities.
type Service struct {
	repo   *repo.AccountRepo
	hasher PasswordHasher
	logger *zap.SugaredLogger
}

func NewService(r *repo.AccountRepo, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{repo: r, hasher: hasher, logger: logger}
}

// Current returns the account of the principal carried by ctx.
func (s *Service) Current(ctx context.Context) (*entity.Account, error) {
	p, ok := token.PrincipalFrom(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	a, err := s.repo.GetByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return a, nil
}

// VerifyCurrentUser re-applies the status policy to the authenticated
// account; an account blocked after login is rejected here.
func (s *Service) VerifyCurrentUser(ctx context.Context) (*entity.Account, error) {
	a, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, ErrInactive
	}
	return a, nil
}

// AuthenticatePassword checks an email/password pair against the stored hash.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) AuthenticatePassword(ctx context.Context, email, password string) (*entity.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// same answer as a wrong password
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if a.PasswordHash == nil || *a.PasswordHash == "" || !s.hasher.Verify(*a.PasswordHash, password) {
		s.logger.Debugw("password check failed", "account_id", a.ID)
		return nil, ErrBadCredentials
	}
	if !a.IsActive() {
		return nil, ErrInactive
	}
	return a, nil
}
