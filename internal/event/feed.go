package event

import (
	"fmt"
	"time"

	fpmath "PerpVault/internal/math"
)

// OraclePriceUpdate is a reference price from the external oracle.
type OraclePriceUpdate struct {
	Feed          string       `json:"feed"`
	Price         fpmath.Price `json:"price"`
	PriceSequence int64        `json:"sequence"` // Monotonic per feed
	Timestamp     time.Time    `json:"timestamp"`
}

func (m *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", m.Feed, m.PriceSequence)
}

func (m *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (m *OraclePriceUpdate) ProductID() uint32 {
	return 0 // feeds can back several products
}

func (m *OraclePriceUpdate) OccurredAt() time.Time {
	return m.Timestamp
}

// InterestRateUpdate sets the yearly holding rate for a product.
// Idempotency key: "{product}:rate:{epoch}".
type InterestRateUpdate struct {
	Product   uint32     `json:"product_id"`
	Rate      fpmath.BPS `json:"rate"` // basis points per year
	EpochID   int64      `json:"epoch_id"`
	Timestamp time.Time  `json:"timestamp"`
}

func (f *InterestRateUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%d:rate:%d", f.Product, f.EpochID)
}

func (f *InterestRateUpdate) EventType() EventType {
	return EventTypeInterestRateUpdate
}

func (f *InterestRateUpdate) ProductID() uint32 {
	return f.Product
}

func (f *InterestRateUpdate) OccurredAt() time.Time {
	return f.Timestamp
}
