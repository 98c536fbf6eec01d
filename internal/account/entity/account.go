package entity

import "time"

// Account is the local record linked to an external identity by SubjectID.
type Account struct {
	ID                int64      `db:"id" json:"id"`
	SubjectID         string     `db:"subject_id" json:"uid"`
	Role              Role       `db:"role" json:"role"`
	StatusID          int        `db:"status_id" json:"status_id"`
	Name              string     `db:"name" json:"name"`
	Email             *string    `db:"email" json:"email"`
	PasswordHash      *string    `db:"password_hash" json:"-"`
	FCMToken          *string    `db:"fcm_token" json:"fcm_token"`
	Avatar            *string    `db:"avatar" json:"avatar"`
	PendingDeletionAt *time.Time `db:"pending_deletion_at" json:"request_delete_at"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsActive applies the role's status policy. Accounts with an unknown role
// are never active.
func (a *Account) IsActive() bool {
	p, err := PolicyFor(a.Role)
	if err != nil {
		return false
	}
	return p.Allowed(a.StatusID)
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Principal is the external identity as reported by the identity provider.
// It is fetched on demand and never persisted as such.
type Principal struct {
	SubjectID    string
	Email        string
	PasswordHash string
}
