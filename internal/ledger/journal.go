package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdrawal
	JournalTypeMarginPost
	JournalTypeMarginRelease
	JournalTypeTradeFee
	JournalTypeFunding
	JournalTypeTradeLoss
	JournalTypeTradeProfit
	JournalTypeLiquidationForfeit
	JournalTypeLiquidatorReward
	JournalTypeStake
	JournalTypeRedeem
	JournalTypeFeeClaim
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeMarginPost:
		return "margin_post"
	case JournalTypeMarginRelease:
		return "margin_release"
	case JournalTypeTradeFee:
		return "trade_fee"
	case JournalTypeFunding:
		return "funding"
	case JournalTypeTradeLoss:
		return "trade_loss"
	case JournalTypeTradeProfit:
		return "trade_profit"
	case JournalTypeLiquidationForfeit:
		return "liquidation_forfeit"
	case JournalTypeLiquidatorReward:
		return "liquidator_reward"
	case JournalTypeStake:
		return "stake"
	case JournalTypeRedeem:
		return "redeem"
	case JournalTypeFeeClaim:
		return "fee_claim"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Deterministic: derived from batch id and leg index
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit, so every
// entry balances on its own; a multi-leg batch is a list of such entries.
// Commands that move no funds (admin updates) produce empty batches.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}

// Stamp assigns the global sequence once the core has accepted the batch.
func (b *Batch) Stamp(sequence int64) {
	b.Sequence = sequence
	for i := range b.Journals {
		b.Journals[i].Sequence = sequence
	}
}

// Deltas returns the net balance change per account.
func (b *Batch) Deltas() map[AccountKey]int64 {
	deltas := make(map[AccountKey]int64, len(b.Journals)*2)
	for _, j := range b.Journals {
		deltas[j.DebitAccount] += j.Amount
		deltas[j.CreditAccount] -= j.Amount
	}
	return deltas
}
