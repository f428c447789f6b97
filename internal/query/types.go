package query

import (
	"time"

	"github.com/google/uuid"
)

// Amounts and prices are rendered as decimal strings so clients never see
// the 1e8 fixed-point scale.

// PositionResponse represents a position for API queries.
type PositionResponse struct {
	PositionID   uuid.UUID `json:"position_id"`
	Owner        uuid.UUID `json:"owner"`
	ProductID    uint32    `json:"product_id"`
	IsLong       bool      `json:"is_long"`
	Margin       string    `json:"margin"`
	Leverage     string    `json:"leverage"`
	Notional     string    `json:"notional"`
	Price        string    `json:"price"`
	OraclePrice  string    `json:"oracle_price"`
	Funding      string    `json:"funding"` // cumulative funding settled
	UpdatedAt    time.Time `json:"updated_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// StakeResponse is one depositor's vault stake.
type StakeResponse struct {
	Owner        uuid.UUID `json:"owner"`
	Shares       string    `json:"shares"`
	Staked       string    `json:"staked"`
	Redeemed     string    `json:"redeemed"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// TradeResponse is one line of trade history.
type TradeResponse struct {
	Sequence         int64      `json:"sequence"`
	PositionID       uuid.UUID  `json:"position_id"`
	ProductID        uint32     `json:"product_id"`
	IsLong           bool       `json:"is_long"`
	Action           string     `json:"action"`
	Price            string     `json:"price"`
	Margin           string     `json:"margin"`
	Leverage         string     `json:"leverage"`
	Fee              string     `json:"fee"`
	Funding          string     `json:"funding"`
	PnL              string     `json:"pnl"`
	Liquidator       *uuid.UUID `json:"liquidator,omitempty"`
	LiquidatorReward string     `json:"liquidator_reward,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// FundingHistoryResponse represents a funding payment record for API queries.
type FundingHistoryResponse struct {
	Sequence   int64     `json:"sequence"`
	PositionID uuid.UUID `json:"position_id"`
	ProductID  uint32    `json:"product_id"`
	Payment    string    `json:"payment"` // positive = paid, negative = received
	OccurredAt time.Time `json:"occurred_at"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// Page wraps a history slice with the cursor for the next page. NextCursor
// is zero when there is nothing older.
type Page[T any] struct {
	Items        []T   `json:"items"`
	NextCursor   int64 `json:"next_cursor,omitempty"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	Imbalance       int64   `json:"imbalance"` // sum of all projected balances
	ProjectionLag   int64   `json:"projection_lag"`
}
