package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountIsActive(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		status   int
		expected bool
	}{
		{name: "customer active", role: RoleCustomer, status: 1, expected: true},
		{name: "customer pending", role: RoleCustomer, status: 2, expected: false},
		{name: "customer blocked", role: RoleCustomer, status: 3, expected: false},
		{name: "customer zero", role: RoleCustomer, status: 0, expected: false},
		{name: "driver active", role: RoleDriver, status: 1, expected: true},
		{name: "driver pending review", role: RoleDriver, status: 2, expected: true},
		{name: "driver blocked", role: RoleDriver, status: 3, expected: false},
		{name: "admin any status", role: RoleAdmin, status: 3, expected: true},
		{name: "unknown role", role: Role(9), status: 1, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Account{Role: tt.role, StatusID: tt.status}
			assert.Equal(t, tt.expected, a.IsActive())
		})
	}
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.DefaultStatus)
	assert.True(t, p.DriverData)
	assert.True(t, p.SecondaryID)

	p, err = PolicyFor(RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, p.DefaultStatus)
	assert.True(t, p.DefaultPlaces)

	p, err = PolicyFor(RoleAdmin)
	require.NoError(t, err)
	assert.False(t, p.AutoProvision)
	assert.False(t, p.SecondaryID)

	_, err = PolicyFor(Role(7))
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRoleAbilities(t *testing.T) {
	assert.Equal(t, []string{"admin"}, RoleAdmin.Abilities())
	assert.Equal(t, []string{"customer"}, RoleCustomer.Abilities())
	assert.Equal(t, []string{"driver"}, RoleDriver.Abilities())
	assert.Nil(t, Role(5).Abilities())
	assert.False(t, Role(-1).Valid())
}

func TestDefaultPlaces(t *testing.T) {
	now := time.Now()
	places := DefaultPlaces(42, now)
	require.Len(t, places, 2)

	assert.Equal(t, "Home", places[0].Name)
	assert.Equal(t, PlaceTypeHome, places[0].Type)
	assert.Equal(t, "Work", places[1].Name)
	assert.Equal(t, PlaceTypeWork, places[1].Type)
	for _, p := range places {
		assert.Equal(t, int64(42), p.AccountID)
		assert.True(t, p.Favorite)
		assert.Zero(t, p.Latitude)
		assert.Zero(t, p.Longitude)
		assert.Empty(t, p.Address)
	}
}
