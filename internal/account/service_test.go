package account

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/database"
)

func newTestService(t *testing.T) (*Service, *repo.AccountRepo) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repo.EnsureTables(context.Background(), db))
	r := repo.NewAccountRepo(db)
	return NewService(r, BcryptHasher{Cost: 4}, zap.NewNop().Sugar()), r
}

func seed(t *testing.T, r *repo.AccountRepo, a *entity.Account) *entity.Account {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), r.DB(), a))
	return a
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("pw")
	require.NoError(t, err)
	assert.True(t, h.Verify(hash, "pw"))
	assert.False(t, h.Verify(hash, "other"))
	assert.False(t, h.Verify("not-a-hash", "pw"))
}

func TestAuthenticatePassword(t *testing.T) {
	svc, r := newTestService(t)
	ctx := context.Background()
	hash, err := svc.hasher.Hash("s3cret")
	require.NoError(t, err)
	email := "ada@example.com"
	active := seed(t, r, &entity.Account{SubjectID: "a", Role: entity.RoleCustomer, StatusID: entity.StatusActive, Email: &email, PasswordHash: &hash})

	got, err := svc.AuthenticatePassword(ctx, " ADA@example.com ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	_, err = svc.AuthenticatePassword(ctx, email, "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.AuthenticatePassword(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.AuthenticatePassword(ctx, "", "")
	assert.ErrorIs(t, err, ErrBadCredentials)

	require.NoError(t, r.SetStatus(ctx, active.ID, entity.StatusBlocked))
	_, err = svc.AuthenticatePassword(ctx, email, "s3cret")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestAuthenticatePassword_NoStoredHash(t *testing.T) {
	svc, r := newTestService(t)
	email := "bo@example.com"
	seed(t, r, &entity.Account{SubjectID: "b", Role: entity.RoleDriver, StatusID: entity.StatusActive, Email: &email})

	_, err := svc.AuthenticatePassword(context.Background(), email, "anything")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestVerifyCurrentUser(t *testing.T) {
	svc, r := newTestService(t)
	ctx := context.Background()

	_, err := svc.VerifyCurrentUser(ctx)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	d := seed(t, r, &entity.Account{SubjectID: "d", Role: entity.RoleDriver, StatusID: entity.StatusPending})
	ctx = token.WithPrincipal(ctx, &token.Principal{AccountID: d.ID, Abilities: []string{"driver"}})
	got, err := svc.VerifyCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d", got.SubjectID)

	require.NoError(t, r.SetStatus(ctx, d.ID, entity.StatusBlocked))
	_, err = svc.VerifyCurrentUser(ctx)
	assert.ErrorIs(t, err, ErrInactive)

	gone := token.WithPrincipal(context.Background(), &token.Principal{AccountID: 9999})
	_, err = svc.Current(gone)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
