package entity

import (
	"errors"
	"fmt"
)

// Role is the account kind. Stored as a small integer and never changed after
// the account is created.
type Role int

const (
	RoleAdmin    Role = 0
	RoleCustomer Role = 1
	RoleDriver   Role = 2
)

// Ability names embedded in issued tokens.
const (
	AbilityAdmin    = "admin"
	AbilityCustomer = "customer"
	AbilityDriver   = "driver"
)

// Status ids with a meaning in the role policies.
const (
	StatusActive  = 1
	StatusPending = 2
	StatusBlocked = 3
)

var ErrUnknownRole = errors.New("unknown role")

// Policy describes everything that differs between roles.
type Policy struct {
	Ability string
	// Allowed reports whether an account of this role may authenticate with
	// the given status id.
	Allowed func(statusID int) bool
	// DefaultStatus is assigned to newly provisioned accounts.
	DefaultStatus int
	// DefaultPlaces is set for roles that get Home/Work placeholders on signup.
	DefaultPlaces bool
	// DriverData is set for roles whose login response carries the driver
	// profile and documents.
	DriverData bool
	// SecondaryID is set for roles whose raw token is exchanged for a handle
	// before it leaves the service.
	SecondaryID bool
	// AutoProvision is false for roles that must already exist locally.
	AutoProvision bool
}

var policies = map[Role]Policy{
	RoleAdmin: {
		Ability:       AbilityAdmin,
		Allowed:       func(int) bool { return true },
		DefaultStatus: StatusActive,
	},
	RoleCustomer: {
		Ability:       AbilityCustomer,
		Allowed:       func(s int) bool { return s == StatusActive },
		DefaultStatus: StatusActive,
		DefaultPlaces: true,
		SecondaryID:   true,
		AutoProvision: true,
	},
	RoleDriver: {
		Ability:       AbilityDriver,
		Allowed:       func(s int) bool { return s != StatusBlocked },
		DefaultStatus: StatusPending,
		DriverData:    true,
		SecondaryID:   true,
		AutoProvision: true,
	},
}

// PolicyFor returns the policy of r.
func PolicyFor(r Role) (Policy, error) {
	p, ok := policies[r]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %d", ErrUnknownRole, int(r))
	}
	return p, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := policies[r]
	return ok
}

// Abilities returns the single ability granted to tokens of this role.
func (r Role) Abilities() []string {
	p, ok := policies[r]
	if !ok {
		return nil
	}
	return []string{p.Ability}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleCustomer:
		return "customer"
	case RoleDriver:
		return "driver"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}
