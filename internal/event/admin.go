package event

import (
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
)

// ProductUpsert adds a product or replaces its configuration.
type ProductUpsert struct {
	Header
	Product uint32              `json:"product_id"`
	Config  state.ProductConfig `json:"config"`
}

func (p *ProductUpsert) EventType() EventType { return EventTypeProductUpsert }
func (p *ProductUpsert) ProductID() uint32    { return p.Product }

// ParametersUpdate replaces the protocol-wide parameters.
type ParametersUpdate struct {
	Header
	global
	Params state.Params `json:"params"`
}

func (p *ParametersUpdate) EventType() EventType { return EventTypeParametersUpdate }

// LiquidationThresholdUpdate changes one product's liquidation threshold.
type LiquidationThresholdUpdate struct {
	Header
	Product   uint32     `json:"product_id"`
	Threshold fpmath.BPS `json:"threshold"`
}

func (l *LiquidationThresholdUpdate) EventType() EventType {
	return EventTypeLiquidationThresholdUpdate
}
func (l *LiquidationThresholdUpdate) ProductID() uint32 { return l.Product }

// MinMarginUpdate changes the minimum margin per open.
type MinMarginUpdate struct {
	Header
	global
	MinMargin fpmath.Amount `json:"min_margin"`
}

func (m *MinMarginUpdate) EventType() EventType { return EventTypeMinMarginUpdate }

// VaultConfigUpdate changes the deposit cap and redemption cooldown.
type VaultConfigUpdate struct {
	Header
	global
	Cap      fpmath.Amount `json:"cap"`
	Cooldown int64         `json:"cooldown"` // seconds
}

func (v *VaultConfigUpdate) EventType() EventType { return EventTypeVaultConfigUpdate }

// ManagerUpdate flags or unflags an address as an account manager.
type ManagerUpdate struct {
	Header
	global
	Manager uuid.UUID `json:"manager"`
	Enabled bool      `json:"enabled"`
}

func (m *ManagerUpdate) EventType() EventType { return EventTypeManagerUpdate }

// LiquidatorUpdate adds or removes an address from the liquidator allowlist.
type LiquidatorUpdate struct {
	Header
	global
	Liquidator uuid.UUID `json:"liquidator"`
	Enabled    bool      `json:"enabled"`
}

func (l *LiquidatorUpdate) EventType() EventType { return EventTypeLiquidatorUpdate }

// AccountManagerApproval is sent by an owner (the caller) to approve or
// revoke a manager acting on its behalf.
type AccountManagerApproval struct {
	Header
	global
	Manager  uuid.UUID `json:"manager"`
	Approved bool      `json:"approved"`
}

func (a *AccountManagerApproval) EventType() EventType { return EventTypeAccountManagerApproval }
