package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-identity/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity/pkg/database"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureTables(context.Background(), db))
	return db
}

func strPtr(s string) *string { return &s }

func TestAccountRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepo(db)
	ctx := context.Background()

	a := &entity.Account{
		SubjectID: "uid123",
		Role:      entity.RoleCustomer,
		StatusID:  entity.StatusActive,
		Name:      "Ada",
		Email:     strPtr("ada@example.com"),
	}
	require.NoError(t, repo.Create(ctx, db, a))
	assert.NotZero(t, a.ID)

	got, err := repo.GetBySubject(ctx, "uid123")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, entity.RoleCustomer, got.Role)
	assert.Equal(t, "ada@example.com", *got.Email)
	assert.Nil(t, got.FCMToken)

	got, err = repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "uid123", got.SubjectID)

	got, err = repo.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.GetBySubject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountRepo_DuplicateSubject(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, db, &entity.Account{SubjectID: "dup", Role: entity.RoleDriver, StatusID: 2}))
	err := repo.Create(ctx, db, &entity.Account{SubjectID: "dup", Role: entity.RoleCustomer, StatusID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSubject))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAccountRepo_TouchClearsDeletionRequest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAccountRepo(db)
	ctx := context.Background()

	a := &entity.Account{SubjectID: "touch", Role: entity.RoleCustomer, StatusID: 1, FCMToken: strPtr("old")}
	require.NoError(t, repo.Create(ctx, db, a))
	require.NoError(t, repo.RequestDeletion(ctx, a.ID))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PendingDeletionAt)

	t.Run("without fcm keeps stored value", func(t *testing.T) {
		require.NoError(t, repo.Touch(ctx, got, nil))
		fresh, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, fresh.PendingDeletionAt)
		require.NotNil(t, fresh.FCMToken)
		assert.Equal(t, "old", *fresh.FCMToken)
	})

	t.Run("with fcm overwrites", func(t *testing.T) {
		require.NoError(t, repo.Touch(ctx, got, strPtr("new")))
		fresh, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", *fresh.FCMToken)
	})

	assert.ErrorIs(t, repo.Touch(ctx, &entity.Account{ID: 999}, nil), ErrNotFound)
}

func TestAccountRepo_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountRepo(db)
	places := NewPlaceRepo(db)
	ctx := context.Background()

	tx, err := accounts.BeginTx(ctx)
	require.NoError(t, err)
	a := &entity.Account{SubjectID: "rollback", Role: entity.RoleCustomer, StatusID: 1}
	require.NoError(t, accounts.Create(ctx, tx, a))
	require.NoError(t, places.Create(ctx, tx, entity.DefaultPlaces(a.ID, a.CreatedAt)))
	require.NoError(t, tx.Rollback())

	n, err := accounts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = places.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPlaceRepo_DefaultPlaces(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountRepo(db)
	places := NewPlaceRepo(db)
	ctx := context.Background()

	a := &entity.Account{SubjectID: "places", Role: entity.RoleCustomer, StatusID: 1}
	require.NoError(t, accounts.Create(ctx, db, a))
	require.NoError(t, places.Create(ctx, db, entity.DefaultPlaces(a.ID, a.CreatedAt)))

	list, err := places.ListByAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Home", list[0].Name)
	assert.Equal(t, 1, list[0].Type)
	assert.Equal(t, "Work", list[1].Name)
	assert.Equal(t, 2, list[1].Type)
	assert.True(t, list[0].Favorite)
}

func TestDriverRepo_FindByAccount(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountRepo(db)
	drivers := NewDriverRepo(db)
	ctx := context.Background()

	a := &entity.Account{SubjectID: "driver", Role: entity.RoleDriver, StatusID: 2}
	require.NoError(t, accounts.Create(ctx, db, a))

	p, err := drivers.FindByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, drivers.Create(ctx, &entity.DriverProfile{
		AccountID:     a.ID,
		LicenseNumber: "L-1",
		Documents: []entity.DriverDocument{
			{Kind: "license", URL: "https://files/l.png", StatusID: 1},
			{Kind: "insurance", URL: "https://files/i.png", StatusID: 1},
		},
	}))

	p, err = drivers.FindByAccount(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "L-1", p.LicenseNumber)

	docs, err := drivers.FindDocuments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "license", docs[0].Kind)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: accounts.subject_id")))
}
