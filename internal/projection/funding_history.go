package projection

import (
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// FundingEntry is one funding settlement against a position. Payment is
// signed: positive is paid by the trader, negative is received.
type FundingEntry struct {
	PositionID uuid.UUID
	Owner      uuid.UUID
	ProductID  uint32
	Payment    fpmath.Amount
}

// appendFunding records a settlement. Events that settle nothing leave no
// history row.
func appendFunding(entries []FundingEntry, positionID, owner uuid.UUID, product uint32, payment fpmath.Amount) []FundingEntry {
	if payment == 0 {
		return entries
	}
	return append(entries, FundingEntry{
		PositionID: positionID,
		Owner:      owner,
		ProductID:  product,
		Payment:    payment,
	})
}

// NetFunding sums payments per owner.
func NetFunding(entries []FundingEntry) map[uuid.UUID]fpmath.Amount {
	net := make(map[uuid.UUID]fpmath.Amount, len(entries))
	for _, e := range entries {
		net[e.Owner] += e.Payment
	}
	return net
}
