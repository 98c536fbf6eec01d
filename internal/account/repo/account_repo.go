package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("account not found")

const accountColumns = `id, subject_id, role, status_id, name, email, password_hash,
	fcm_token, avatar, pending_deletion_at, created_at, updated_at`

// AccountRepo provides data access for the accounts table using sqlx.
// Methods that take a sqlx.ExtContext run on either the pool or an open
// transaction.
type AccountRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo {
	return &AccountRepo{db: db, now: time.Now}
}

// DB returns the pool the repository reads from.
func (r *AccountRepo) DB() *sqlx.DB { return r.db }

// BeginTx opens a transaction for callers that group several writes.
func (r *AccountRepo) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

// GetBySubject returns the account linked to an external subject id.
func (r *AccountRepo) GetBySubject(ctx context.Context, subjectID string) (*entity.Account, error) {
	return r.getOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE subject_id = ?`, subjectID)
}

// GetByID fetches a full account row.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*entity.Account, error) {
	return r.getOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// GetByEmail returns the first account registered with email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.getOne(ctx, r.db, `SELECT `+accountColumns+` FROM accounts WHERE email = ? ORDER BY id LIMIT 1`, email)
}

func (r *AccountRepo) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*entity.Account, error) {
	var a entity.Account
	if err := sqlx.GetContext(ctx, q, &a, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account and sets its ID. A subject id that is already
// taken yields ErrDuplicateSubject.
func (r *AccountRepo) Create(ctx context.Context, ext sqlx.ExtContext, a *entity.Account) error {
	now := r.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	q := ext.Rebind(`INSERT INTO accounts (subject_id, role, status_id, name, email, password_hash, fcm_token, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	row := ext.QueryRowxContext(ctx, q,
		a.SubjectID, a.Role, a.StatusID, a.Name, a.Email, a.PasswordHash, a.FCMToken, a.Avatar, a.CreatedAt, a.UpdatedAt)
	if err := row.Scan(&a.ID); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSubject, a.SubjectID)
		}
		return err
	}
	return nil
}

// Touch records a successful login: the pending deletion request is cleared
// and, when fcmToken is non-nil, the push handle is overwritten.
func (r *AccountRepo) Touch(ctx context.Context, a *entity.Account, fcmToken *string) error {
	now := r.now().UTC()
	fcm := a.FCMToken
	if fcmToken != nil {
		fcm = fcmToken
	}
	q := r.db.Rebind(`UPDATE accounts SET pending_deletion_at = NULL, fcm_token = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, fcm, now, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	a.PendingDeletionAt = nil
	a.FCMToken = fcm
	a.UpdatedAt = now
	return nil
}

// RequestDeletion marks the account for deletion. A later successful login
// cancels the request.
func (r *AccountRepo) RequestDeletion(ctx context.Context, id int64) error {
	now := r.now().UTC()
	q := r.db.Rebind(`UPDATE accounts SET pending_deletion_at = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, now, now, id)
	return err
}

// SetAvatar stores the public avatar URL of an account.
func (r *AccountRepo) SetAvatar(ctx context.Context, id int64, url string) error {
	q := r.db.Rebind(`UPDATE accounts SET avatar = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, url, r.now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus changes the activation state of an account.
func (r *AccountRepo) SetStatus(ctx context.Context, id int64, statusID int) error {
	q := r.db.Rebind(`UPDATE accounts SET status_id = ?, updated_at = ? WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, q, statusID, r.now().UTC(), id)
	return err
}

// Count returns the number of accounts, used by tests and diagnostics.
func (r *AccountRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts`)
	return n, err
}
