package entity

import "time"

// Place types.
const (
	PlaceTypeHome = 1
	PlaceTypeWork = 2
)

// Place is a saved location owned by a customer.
type Place struct {
	ID        int64     `db:"id" json:"id"`
	AccountID int64     `db:"account_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Type      int       `db:"type" json:"type"`
	Favorite  bool      `db:"favorite" json:"favorite"`
	Latitude  float64   `db:"latitude" json:"latitude"`
	Longitude float64   `db:"longitude" json:"longitude"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DefaultPlaces returns the unlocated Home and Work placeholders a new
// customer starts with.
func DefaultPlaces(accountID int64, now time.Time) []Place {
	return []Place{
		{AccountID: accountID, Name: "Home", Type: PlaceTypeHome, Favorite: true, CreatedAt: now},
		{AccountID: accountID, Name: "Work", Type: PlaceTypeWork, Favorite: true, CreatedAt: now},
	}
}
