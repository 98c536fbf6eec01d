package token

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-identity/internal/token/repo"
)

// Principal is the authenticated caller behind a bearer credential.
type Principal struct {
	AccountID int64
	TokenID   int64
	Device    string
	Abilities []string
}

// Can reports whether the principal's token carries ability.
func (p *Principal) Can(ability string) bool {
	return slices.Contains(p.Abilities, ability)
}

// Authenticate resolves a bearer credential to its principal. Handles are
// exchanged for their raw token first. A token is only accepted while its
// device token row exists, so a replaced or revoked token fails here even
// before it expires.
func (i *Issuer) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, ErrUnauthenticated
	}
	raw, viaHandle := bearer, false
	if strings.Count(bearer, ".") != 2 {
		r, err := i.secIDs.Resolve(ctx, bearer)
		if err != nil {
			if errors.Is(err, ErrUnknownHandle) {
				return nil, ErrRevoked
			}
			return nil, err
		}
		raw, viaHandle = r, true
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return &i.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	id, err := strconv.ParseInt(claims.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad jti", ErrUnauthenticated)
	}

	row, err := i.tokens.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRevoked
		}
		return nil, err
	}
	if row.TokenHash != hashToken(raw) || strconv.FormatInt(row.AccountID, 10) != claims.Subject {
		return nil, ErrRevoked
	}
	// customer and driver tokens are only valid through their handle
	if row.Handle != nil && (!viaHandle || *row.Handle != bearer) {
		return nil, ErrUnauthenticated
	}
	return &Principal{
		AccountID: row.AccountID,
		TokenID:   row.ID,
		Device:    row.DeviceName,
		Abilities: row.AbilityList(),
	}, nil
}
