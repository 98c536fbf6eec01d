package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names registered by the imported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes the database connection. TimeZone and ClientEncoding are
// passed to postgres as startup options so every pooled connection gets them.
type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// DetectDriver picks the sql driver for a DSN. Anything that is not a
// postgres URL is treated as a SQLite path.
func DetectDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects with the driver matching cfg.DSN and wraps the handle with sqlx.
func Open(cfg Config) (*sqlx.DB, error) {
	if DetectDriver(cfg.DSN) == DriverPostgres {
		db, err := Connect(cfg)
		if err != nil {
			return nil, err
		}
		return sqlx.NewDb(db, DriverPostgres), nil
	}
	return OpenSQLite(cfg.DSN)
}

// OpenSQLite opens a SQLite database with foreign keys enabled and a busy
// timeout so concurrent writers wait for the lock instead of failing.
func OpenSQLite(path string) (*sqlx.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Connect opens a *sql.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sql.DB, error) {
	dsn, err := sessionDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// sessionDSN appends the session settings to the options parameter of a
// postgres URL, keeping any options already present.
func sessionDSN(cfg Config) (string, error) {
	if cfg.TimeZone == "" && cfg.ClientEncoding == "" {
		return cfg.DSN, nil
	}
	u, err := url.Parse(cfg.DSN)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	var opts []string
	if o := q.Get("options"); o != "" {
		opts = append(opts, o)
	}
	if cfg.TimeZone != "" {
		opts = append(opts, "-c timezone="+escapeOption(cfg.TimeZone))
	}
	if cfg.ClientEncoding != "" {
		opts = append(opts, "-c client_encoding="+escapeOption(cfg.ClientEncoding))
	}
	q.Set("options", strings.Join(opts, " "))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// escapeOption backslash-escapes spaces and backslashes, which separate
// arguments inside the options parameter.
func escapeOption(s string) string {
	return strings.NewReplacer(`\`, `\\`, " ", `\ `).Replace(s)
}
