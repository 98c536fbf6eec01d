package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
)

// PlaceRepo stores customer places.
type PlaceRepo struct {
	db *sqlx.DB
}

func NewPlaceRepo(db *sqlx.DB) *PlaceRepo { return &PlaceRepo{db: db} }

// Create inserts places on ext and fills their ids.
func (r *PlaceRepo) Create(ctx context.Context, ext sqlx.ExtContext, places []entity.Place) error {
	q := ext.Rebind(`INSERT INTO places (account_id, name, type, favorite, latitude, longitude, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	for i := range places {
		p := &places[i]
		row := ext.QueryRowxContext(ctx, q, p.AccountID, p.Name, p.Type, p.Favorite, p.Latitude, p.Longitude, p.Address, p.CreatedAt.UTC())
		if err := row.Scan(&p.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListByAccount returns the places of an account ordered by type.
func (r *PlaceRepo) ListByAccount(ctx context.Context, accountID int64) ([]entity.Place, error) {
	var out []entity.Place
	q := r.db.Rebind(`SELECT id, account_id, name, type, favorite, latitude, longitude, address, created_at
		FROM places WHERE account_id = ? ORDER BY type, id`)
	if err := r.db.SelectContext(ctx, &out, q, accountID); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of place rows.
func (r *PlaceRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM places`)
	return n, err
}
