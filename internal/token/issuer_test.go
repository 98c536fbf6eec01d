package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	acct "github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	acctrepo "github.com/ovaphlow/pitchfork/service-identity/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity/internal/token/repo"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/utilities"
)

// failingSecondaryIDs refuses every exchange.
type failingSecondaryIDs struct {
	*MemorySecondaryIDs
}

func (f failingSecondaryIDs) Exchange(context.Context, string) (string, error) {
	return "", errors.New("secid service unavailable")
}

type fixture struct {
	db       *sqlx.DB
	accounts *acctrepo.AccountRepo
	tokens   *repo.TokenRepo
	secIDs   *MemorySecondaryIDs
	issuer   *Issuer
	key      *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, acctrepo.EnsureTables(ctx, db))
	tokens := repo.NewTokenRepo(db)
	require.NoError(t, tokens.EnsureTable(ctx))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	secIDs := NewMemorySecondaryIDs()
	issuer := NewIssuer(key, tokens, utilities.NewIDGenerator(1), secIDs, Options{Issuer: "test", TTL: time.Hour}, zap.NewNop().Sugar())
	return &fixture{db: db, accounts: acctrepo.NewAccountRepo(db), tokens: tokens, secIDs: secIDs, issuer: issuer, key: key}
}

func (f *fixture) account(t *testing.T, subject string, role acct.Role) *acct.Account {
	t.Helper()
	a := &acct.Account{SubjectID: subject, Role: role, StatusID: acct.StatusActive}
	require.NoError(t, f.accounts.Create(context.Background(), f.db, a))
	return a
}

func TestIssuer_AdminGetsRawToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "admin", acct.RoleAdmin)

	m, err := f.issuer.Issue(ctx, admin, "laptop")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(m.Token, "."), "admin token is a raw JWT")
	assert.Equal(t, []string{"admin"}, m.Abilities)
	assert.Zero(t, f.secIDs.Len())

	p, err := f.issuer.Authenticate(ctx, m.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.AccountID)
	assert.Equal(t, "laptop", p.Device)
	assert.True(t, p.Can("admin"))
	assert.False(t, p.Can("driver"))
}

func TestIssuer_CustomerGetsHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.account(t, "cust", acct.RoleCustomer)

	m, err := f.issuer.Issue(ctx, c, "phone")
	require.NoError(t, err)
	assert.NotContains(t, m.Token, ".")
	assert.Equal(t, []string{"customer"}, m.Abilities)

	p, err := f.issuer.Authenticate(ctx, m.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, p.AccountID)

	raw, err := f.secIDs.Resolve(ctx, m.Token)
	require.NoError(t, err)
	_, err = f.issuer.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrUnauthenticated, "raw customer token must go through its handle")
}

func TestIssuer_SecondTokenInvalidatesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.account(t, "drv", acct.RoleDriver)

	first, err := f.issuer.Issue(ctx, d, "phone")
	require.NoError(t, err)
	second, err := f.issuer.Issue(ctx, d, "phone")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = f.issuer.Authenticate(ctx, first.Token)
	assert.ErrorIs(t, err, ErrRevoked)
	_, err = f.issuer.Authenticate(ctx, second.Token)
	assert.NoError(t, err)

	n, err := f.tokens.CountByDevice(ctx, d.ID, "phone")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.secIDs.Len(), "stale handle released")

	_, err = f.issuer.Issue(ctx, d, "tablet")
	require.NoError(t, err)
	n, err = f.tokens.CountByAccount(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "devices are independent")
}

func TestIssuer_TransformFailureLeavesNoValidToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.account(t, "cust", acct.RoleCustomer)

	prior, err := f.issuer.Issue(ctx, c, "phone")
	require.NoError(t, err)

	failing := NewIssuer(f.key, f.tokens, utilities.NewIDGenerator(2), failingSecondaryIDs{f.secIDs}, Options{Issuer: "test", TTL: time.Hour}, zap.NewNop().Sugar())
	_, err = failing.Issue(ctx, c, "phone")
	require.ErrorIs(t, err, ErrIssuance)

	n, err := f.tokens.CountByDevice(ctx, c.ID, "phone")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.issuer.Authenticate(ctx, prior.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIssuer_Revoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.account(t, "cust", acct.RoleCustomer)

	m, err := f.issuer.Issue(ctx, c, "phone")
	require.NoError(t, err)
	require.NoError(t, f.issuer.Revoke(ctx, m.TokenID))
	require.NoError(t, f.issuer.Revoke(ctx, m.TokenID), "revoking twice is a no-op")

	_, err = f.issuer.Authenticate(ctx, m.Token)
	assert.ErrorIs(t, err, ErrRevoked)
	assert.Zero(t, f.secIDs.Len())
}

func TestIssuer_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "admin", acct.RoleAdmin)

	m, err := f.issuer.Issue(ctx, admin, "laptop")
	require.NoError(t, err)
	f.issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.issuer.Authenticate(ctx, m.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIssuer_IssueTxDiscard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.account(t, "cust", acct.RoleCustomer)

	tx, err := f.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	m, err := f.issuer.IssueTx(ctx, tx, c, "phone")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	f.issuer.Discard(ctx, m)

	assert.Zero(t, f.secIDs.Len())
	_, err = f.issuer.Authenticate(ctx, m.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_RejectsGarbage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.issuer.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.issuer.Authenticate(ctx, "unknown-handle")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.issuer.Authenticate(ctx, "a.b.c")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")
	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.True(t, k1.Equal(k2))
	assert.Equal(t, keyID(k1), keyID(k2))

	set := jwks(k1, keyID(k1))
	keys := set["keys"].([]any)
	require.Len(t, keys, 1)
	assert.Equal(t, "RS256", keys[0].(map[string]any)["alg"])
}

func TestRedisSecondaryIDs(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	s := NewRedisSecondaryIDs(client, time.Minute, time.Second)
	handle, err := s.Exchange(ctx, "raw-token")
	require.NoError(t, err)

	raw, err := s.Resolve(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "raw-token", raw)

	require.NoError(t, s.Revoke(ctx, handle))
	_, err = s.Resolve(ctx, handle)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestHandler_Introspect(t *testing.T) {
	f := newFixture(t)
	c := f.account(t, "cust", acct.RoleCustomer)
	m, err := f.issuer.Issue(context.Background(), c, "phone")
	require.NoError(t, err)
	h := NewHandler(f.issuer, zap.NewNop().Sugar())

	introspect := func(tok string) map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/oauth/introspect", strings.NewReader(url.Values{"token": {tok}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.Introspect(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	out := introspect(m.Token)
	assert.Equal(t, true, out["active"])
	assert.Equal(t, "phone", out["device"])
	assert.Equal(t, []any{"customer"}, out["scope"])

	require.NoError(t, f.issuer.Revoke(context.Background(), m.TokenID))
	assert.Equal(t, map[string]any{"active": false}, introspect(m.Token))
}
