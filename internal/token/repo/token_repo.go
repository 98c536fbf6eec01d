package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity/internal/token/entity"
)

// NOTE: expected table schema (Postgres):
// CREATE TABLE device_tokens (
//   id BIGINT PRIMARY KEY,
//   account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
//   device_name TEXT NOT NULL,
//   token_hash TEXT NOT NULL,
//   abilities TEXT NOT NULL,
//   handle TEXT,
//   created_at TIMESTAMPTZ NOT NULL,
//   expires_at TIMESTAMPTZ NOT NULL,
//   UNIQUE (account_id, device_name)
// );

var ErrNotFound = errors.New("device token not found")

const tokenColumns = `id, account_id, device_name, token_hash, abilities, handle, created_at, expires_at`

type TokenRepo struct {
	db *sqlx.DB
}

func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// EnsureTable creates the device_tokens table if it does not exist.
func (r *TokenRepo) EnsureTable(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if r.db.DriverName() != "postgres" {
		ts = "TIMESTAMP"
	}
	ddl := `CREATE TABLE IF NOT EXISTS device_tokens (
  id BIGINT PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  device_name TEXT NOT NULL,
  token_hash TEXT NOT NULL,
  abilities TEXT NOT NULL,
  handle TEXT,
  created_at ` + ts + ` NOT NULL,
  expires_at ` + ts + ` NOT NULL,
  UNIQUE (account_id, device_name)
)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// DB returns the pool used for standalone operations.
func (r *TokenRepo) DB() *sqlx.DB { return r.db }

// DeleteByDevice removes the tokens of (accountID, deviceName) on ext and
// returns the secondary handles they carried.
func (r *TokenRepo) DeleteByDevice(ctx context.Context, ext sqlx.ExtContext, accountID int64, deviceName string) ([]string, error) {
	var handles []sql.NullString
	q := ext.Rebind(`SELECT handle FROM device_tokens WHERE account_id = ? AND device_name = ?`)
	if err := sqlx.SelectContext(ctx, ext, &handles, q, accountID, deviceName); err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, nil
	}
	dq := ext.Rebind(`DELETE FROM device_tokens WHERE account_id = ? AND device_name = ?`)
	if _, err := ext.ExecContext(ctx, dq, accountID, deviceName); err != nil {
		return nil, err
	}
	var out []string
	for _, h := range handles {
		if h.Valid && h.String != "" {
			out = append(out, h.String)
		}
	}
	return out, nil
}

// Insert records a newly minted token on ext.
func (r *TokenRepo) Insert(ctx context.Context, ext sqlx.ExtContext, t *entity.DeviceToken) error {
	q := ext.Rebind(`INSERT INTO device_tokens (` + tokenColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ext.ExecContext(ctx, q,
		t.ID, t.AccountID, t.DeviceName, t.TokenHash, t.Abilities, t.Handle, t.CreatedAt.UTC(), t.ExpiresAt.UTC())
	return err
}

// Get returns the token row with the given id.
func (r *TokenRepo) Get(ctx context.Context, id int64) (*entity.DeviceToken, error) {
	var t entity.DeviceToken
	q := r.db.Rebind(`SELECT ` + tokenColumns + ` FROM device_tokens WHERE id = ?`)
	if err := r.db.GetContext(ctx, &t, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Delete removes a single token and returns its handle, if any.
func (r *TokenRepo) Delete(ctx context.Context, id int64) (*string, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM device_tokens WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return t.Handle, nil
}

// CountByDevice returns how many tokens exist for (accountID, deviceName).
func (r *TokenRepo) CountByDevice(ctx context.Context, accountID int64, deviceName string) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(*) FROM device_tokens WHERE account_id = ? AND device_name = ?`)
	err := r.db.GetContext(ctx, &n, q, accountID, deviceName)
	return n, err
}

// CountByAccount returns how many tokens exist for an account.
func (r *TokenRepo) CountByAccount(ctx context.Context, accountID int64) (int, error) {
	var n int
	q := r.db.Rebind(`SELECT COUNT(*) FROM device_tokens WHERE account_id = ?`)
	err := r.db.GetContext(ctx, &n, q, accountID)
	return n, err
}
