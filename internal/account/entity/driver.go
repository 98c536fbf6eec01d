package entity

import "time"

// DriverProfile holds the onboarding data of a driver account. It is managed
// outside the login flow; login only reads it.
type DriverProfile struct {
	ID            int64            `db:"id" json:"id"`
	AccountID     int64            `db:"account_id" json:"user_id"`
	LicenseNumber string           `db:"license_number" json:"license_number"`
	VehicleModel  string           `db:"vehicle_model" json:"vehicle_model"`
	VehiclePlate  string           `db:"vehicle_plate" json:"vehicle_plate"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	Documents     []DriverDocument `db:"-" json:"documents"`
}

// DriverDocument is an uploaded document attached to a driver profile.
type DriverDocument struct {
	ID              int64     `db:"id" json:"id"`
	DriverProfileID int64     `db:"driver_profile_id" json:"driver_information_id"`
	Kind            string    `db:"kind" json:"kind"`
	URL             string    `db:"url" json:"url"`
	StatusID        int       `db:"status_id" json:"status_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
