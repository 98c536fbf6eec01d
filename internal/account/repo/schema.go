package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// NOTE: tables are created idempotently at startup. The two dialects differ
// only in the id column and JSON-free column types.

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
  id BIGSERIAL PRIMARY KEY,
  subject_id TEXT NOT NULL UNIQUE,
  role SMALLINT NOT NULL,
  status_id SMALLINT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  email TEXT,
  password_hash TEXT,
  fcm_token TEXT,
  avatar TEXT,
  pending_deletion_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email)`,
	`CREATE TABLE IF NOT EXISTS places (
  id BIGSERIAL PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  type SMALLINT NOT NULL,
  favorite BOOLEAN NOT NULL DEFAULT false,
  latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
  address TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_places_account ON places(account_id)`,
	`CREATE TABLE IF NOT EXISTS driver_profiles (
  id BIGSERIAL PRIMARY KEY,
  account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
  license_number TEXT NOT NULL DEFAULT '',
  vehicle_model TEXT NOT NULL DEFAULT '',
  vehicle_plate TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS driver_documents (
  id BIGSERIAL PRIMARY KEY,
  driver_profile_id BIGINT NOT NULL REFERENCES driver_profiles(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  url TEXT NOT NULL,
  status_id SMALLINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  subject_id TEXT NOT NULL UNIQUE,
  role INTEGER NOT NULL,
  status_id INTEGER NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  email TEXT,
  password_hash TEXT,
  fcm_token TEXT,
  avatar TEXT,
  pending_deletion_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email)`,
	`CREATE TABLE IF NOT EXISTS places (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  type INTEGER NOT NULL,
  favorite BOOLEAN NOT NULL DEFAULT 0,
  latitude REAL NOT NULL DEFAULT 0,
  longitude REAL NOT NULL DEFAULT 0,
  address TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_places_account ON places(account_id)`,
	`CREATE TABLE IF NOT EXISTS driver_profiles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  account_id INTEGER NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
  license_number TEXT NOT NULL DEFAULT '',
  vehicle_model TEXT NOT NULL DEFAULT '',
  vehicle_plate TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS driver_documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  driver_profile_id INTEGER NOT NULL REFERENCES driver_profiles(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  url TEXT NOT NULL,
  status_id INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMP NOT NULL
)`,
}

// EnsureTables creates the account, place and driver tables if they do not
// exist. Prefer migrations in production.
func EnsureTables(ctx context.Context, db *sqlx.DB) error {
	ddl := postgresDDL
	if db.DriverName() != "postgres" {
		ddl = sqliteDDL
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
