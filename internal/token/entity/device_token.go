package entity

import (
	"strings"
	"time"
)

// DeviceToken is the persisted record of an issued access token. At most one
// exists per (AccountID, DeviceName); a token without its row is revoked.
type DeviceToken struct {
	ID         int64     `db:"id"`
	AccountID  int64     `db:"account_id"`
	DeviceName string    `db:"device_name"`
	TokenHash  string    `db:"token_hash"`
	Abilities  string    `db:"abilities"`
	Handle     *string   `db:"handle"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// AbilityList splits the stored comma separated abilities.
func (t *DeviceToken) AbilityList() []string {
	if t.Abilities == "" {
		return nil
	}
	return strings.Split(t.Abilities, ",")
}
