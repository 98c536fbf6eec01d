package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// DriverRepo reads driver profiles and their documents. Profiles are written
// by the onboarding service; Create exists for seeding and tests.
type DriverRepo struct {
	db *sqlx.DB
}

func NewDriverRepo(db *sqlx.DB) *DriverRepo { return &DriverRepo{db: db} }

// FindByAccount returns the driver profile of an account, or nil if the
// driver has not submitted one yet.
func (r *DriverRepo) FindByAccount(ctx context.Context, accountID int64) (*entity.DriverProfile, error) {
	var p entity.DriverProfile
	q := r.db.Rebind(`SELECT id, account_id, license_number, vehicle_model, vehicle_plate, created_at
		FROM driver_profiles WHERE account_id = ?`)
	if err := r.db.GetContext(ctx, &p, q, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindDocuments lists the documents attached to a driver profile.
func (r *DriverRepo) FindDocuments(ctx context.Context, profileID int64) ([]entity.DriverDocument, error) {
	docs := []entity.DriverDocument{}
	q := r.db.Rebind(`SELECT id, driver_profile_id, kind, url, status_id, created_at
		FROM driver_documents WHERE driver_profile_id = ? ORDER BY id`)
	if err := r.db.SelectContext(ctx, &docs, q, profileID); err != nil {
		return nil, err
	}
	return docs, nil
}

// Create inserts a profile and its documents.
func (r *DriverRepo) Create(ctx context.Context, p *entity.DriverProfile) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	q := r.db.Rebind(`INSERT INTO driver_profiles (account_id, license_number, vehicle_model, vehicle_plate, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := r.db.QueryRowxContext(ctx, q, p.AccountID, p.LicenseNumber, p.VehicleModel, p.VehiclePlate, now).Scan(&p.ID); err != nil {
		return err
	}
	dq := r.db.Rebind(`INSERT INTO driver_documents (driver_profile_id, kind, url, status_id, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	for i := range p.Documents {
		d := &p.Documents[i]
		d.DriverProfileID = p.ID
		d.CreatedAt = now
		if err := r.db.QueryRowxContext(ctx, dq, d.DriverProfileID, d.Kind, d.URL, d.StatusID, now).Scan(&d.ID); err != nil {
			return err
		}
	}
	return nil
}
