package event

import (
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// Stake deposits Amount from the caller's collateral into the vault and
// mints shares to Beneficiary.
type Stake struct {
	Header
	global
	Beneficiary uuid.UUID     `json:"beneficiary"`
	Amount      fpmath.Amount `json:"amount"`
}

func (s *Stake) EventType() EventType { return EventTypeStake }

// Redeem burns Shares owned by Beneficiary and pays the proceeds to Recipient.
type Redeem struct {
	Header
	global
	Beneficiary uuid.UUID     `json:"beneficiary"`
	Shares      fpmath.Amount `json:"shares"`
	Recipient   uuid.UUID     `json:"recipient"`
}

func (r *Redeem) EventType() EventType { return EventTypeRedeem }

// FeePool names one of the three fee destinations.
type FeePool int32

const (
	FeePoolProtocol FeePool = iota + 1
	FeePoolStaking
	FeePoolVault
)

func (p FeePool) String() string {
	switch p {
	case FeePoolProtocol:
		return "protocol"
	case FeePoolStaking:
		return "staking"
	case FeePoolVault:
		return "vault"
	default:
		return "unknown"
	}
}

// FeeClaim drains one fee pool to its reward distributor.
type FeeClaim struct {
	Header
	global
	Pool FeePool `json:"pool"`
}

func (f *FeeClaim) EventType() EventType { return EventTypeFeeClaim }
