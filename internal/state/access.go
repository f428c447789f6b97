package state

import "github.com/google/uuid"

// ManagerGrant is an owner's approval of an account manager.
type ManagerGrant struct {
	Owner   uuid.UUID `json:"owner"`
	Manager uuid.UUID `json:"manager"`
}

// Access holds every role the core checks.
type Access struct {
	Governor        uuid.UUID             `json:"governor"`
	Managers        map[uuid.UUID]bool    `json:"managers"`
	AccountManagers map[ManagerGrant]bool `json:"-"`
	Liquidators     map[uuid.UUID]bool    `json:"liquidators"`
}

func newAccess(governor uuid.UUID) Access {
	return Access{
		Governor:        governor,
		Managers:        make(map[uuid.UUID]bool),
		AccountManagers: make(map[ManagerGrant]bool),
		Liquidators:     make(map[uuid.UUID]bool),
	}
}

// CanActFor reports whether caller may operate owner's positions and stakes:
// the owner itself, or a manager that both the governor flagged and the
// owner approved.
func CanActFor(s LedgerStore, owner, caller uuid.UUID) bool {
	if caller == owner {
		return true
	}
	return s.IsManager(caller) && s.IsAccountManager(owner, caller)
}

// CanLiquidate reports whether caller may liquidate positions.
func CanLiquidate(s LedgerStore, caller uuid.UUID) bool {
	return s.Params().AllowPublicLiquidator || s.IsLiquidator(caller)
}
