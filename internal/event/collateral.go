package event

import (
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// CollateralDeposit credits collateral that custody has already received.
type CollateralDeposit struct {
	Header
	global
	Account uuid.UUID     `json:"account"`
	Amount  fpmath.Amount `json:"amount"`
}

func (d *CollateralDeposit) EventType() EventType { return EventTypeCollateralDeposit }

// CollateralWithdrawal debits free collateral for payout by custody.
type CollateralWithdrawal struct {
	Header
	global
	Account uuid.UUID     `json:"account"`
	Amount  fpmath.Amount `json:"amount"`
}

func (w *CollateralWithdrawal) EventType() EventType { return EventTypeCollateralWithdrawal }
