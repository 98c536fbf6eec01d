package token

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	acct "github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token/repo"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/utilities"
)

var (
	// ErrIssuance is returned when a token could not be minted or exchanged
	// for its secondary handle. No token for the device is valid afterwards.
	ErrIssuance        = errors.New("token: issuance failed")
	ErrUnauthenticated = errors.New("token: unauthenticated")
	ErrRevoked         = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
)

// Claims carried by issued access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Abilities []string `json:"abl"`
	Device    string   `json:"dev"`
}

// Material is an issued token as handed to the client.
type Material struct {
	// Token is the raw JWT for admins and the secondary handle for
	// customers and drivers.
	Token     string
	TokenID   int64
	Abilities []string
	ExpiresAt time.Time

	handle string
	stale  []string
}

// Options configure the issuer.
type Options struct {
	Issuer string
	TTL    time.Duration
}

// Issuer mints role-scoped access tokens with at most one live token per
// (account, device).
type Issuer struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	ttl    time.Duration
	tokens *repo.TokenRepo
	ids    *utilities.IDGenerator
	secIDs SecondaryIDs
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewIssuer(key *rsa.PrivateKey, tokens *repo.TokenRepo, ids *utilities.IDGenerator, secIDs SecondaryIDs, opts Options, logger *zap.SugaredLogger) *Issuer {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Issuer{
		key:    key,
		kid:    keyID(key),
		issuer: opts.Issuer,
		ttl:    ttl,
		tokens: tokens,
		ids:    ids,
		secIDs: secIDs,
		logger: logger,
		now:    time.Now,
	}
}

// JWKS returns the public key set verifying issued tokens.
func (i *Issuer) JWKS() map[string]any {
	return jwks(i.key, i.kid)
}

// Issue revokes the device's current token and mints a new one in a single
// transaction. When minting or the secondary exchange fails the revocation
// is still committed, so the device is left without a valid token.
func (i *Issuer) Issue(ctx context.Context, a *acct.Account, device string) (*Material, error) {
	tx, err := i.tokens.DB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	m, stale, err := i.issue(ctx, tx, a, device)
	if err != nil {
		if errors.Is(err, ErrIssuance) {
			if cerr := tx.Commit(); cerr != nil {
				return nil, fmt.Errorf("commit revocation: %w", cerr)
			}
			i.dropHandles(ctx, stale)
			return nil, err
		}
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		i.dropHandles(ctx, []string{m.handle})
		return nil, err
	}
	i.dropHandles(ctx, stale)
	return m, nil
}

// IssueTx issues inside a caller owned transaction. The caller must call
// Finalize after commit or Discard after rollback.
func (i *Issuer) IssueTx(ctx context.Context, tx *sqlx.Tx, a *acct.Account, device string) (*Material, error) {
	m, stale, err := i.issue(ctx, tx, a, device)
	if err != nil {
		return nil, err
	}
	m.stale = stale
	return m, nil
}

// Finalize releases the handles of tokens replaced by m.
func (i *Issuer) Finalize(ctx context.Context, m *Material) {
	if m != nil {
		i.dropHandles(ctx, m.stale)
	}
}

// Discard releases the secondary handle of a token whose row was rolled back.
func (i *Issuer) Discard(ctx context.Context, m *Material) {
	if m != nil && m.handle != "" {
		i.dropHandles(ctx, []string{m.handle})
	}
}

func (i *Issuer) issue(ctx context.Context, ext sqlx.ExtContext, a *acct.Account, device string) (*Material, []string, error) {
	policy, err := acct.PolicyFor(a.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrIssuance, err)
	}
	stale, err := i.tokens.DeleteByDevice(ctx, ext, a.ID, device)
	if err != nil {
		return nil, nil, fmt.Errorf("revoke device tokens: %w", err)
	}

	now := i.now()
	id := i.ids.Next()
	abilities := a.Role.Abilities()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(a.ID, 10),
			ID:        strconv.FormatInt(id, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Abilities: abilities,
		Device:    device,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.kid
	raw, err := tok.SignedString(i.key)
	if err != nil {
		return nil, stale, fmt.Errorf("%w: sign: %w", ErrIssuance, err)
	}

	m := &Material{Token: raw, TokenID: id, Abilities: abilities, ExpiresAt: now.Add(i.ttl)}
	row := &entity.DeviceToken{
		ID:         id,
		AccountID:  a.ID,
		DeviceName: device,
		TokenHash:  hashToken(raw),
		Abilities:  strings.Join(abilities, ","),
		CreatedAt:  now,
		ExpiresAt:  m.ExpiresAt,
	}
	if policy.SecondaryID {
		handle, err := i.secIDs.Exchange(ctx, raw)
		if err != nil {
			// the minted token was never recorded, so it can not authorize
			return nil, stale, fmt.Errorf("%w: secondary id: %w", ErrIssuance, err)
		}
		m.Token, m.handle = handle, handle
		row.Handle = &handle
	}
	if err := i.tokens.Insert(ctx, ext, row); err != nil {
		i.dropHandles(ctx, []string{m.handle})
		return nil, stale, fmt.Errorf("record token: %w", err)
	}
	i.logger.Debugw("token issued", "account_id", a.ID, "device", device, "token_id", id, "abilities", abilities)
	return m, stale, nil
}

// Revoke deletes a single token and its handle.
func (i *Issuer) Revoke(ctx context.Context, tokenID int64) error {
	handle, err := i.tokens.Delete(ctx, tokenID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if handle != nil {
		i.dropHandles(ctx, []string{*handle})
	}
	return nil
}

// dropHandles revokes secondary handles best-effort. A handle left behind
// cannot authorize because its token row is gone.
func (i *Issuer) dropHandles(ctx context.Context, handles []string) {
	for _, h := range handles {
		if h == "" {
			continue
		}
		if err := i.secIDs.Revoke(context.WithoutCancel(ctx), h); err != nil {
			i.logger.Warnw("secondary handle revoke failed", "err", err)
		}
	}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
