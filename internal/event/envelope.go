package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeOpenPosition
	EventTypeClosePosition
	EventTypeModifyMargin
	EventTypeLiquidatePosition
	EventTypeStake
	EventTypeRedeem
	EventTypeCollateralDeposit
	EventTypeCollateralWithdrawal
	EventTypeOraclePriceUpdate
	EventTypeInterestRateUpdate
	EventTypeProductUpsert
	EventTypeParametersUpdate
	EventTypeLiquidationThresholdUpdate
	EventTypeMinMarginUpdate
	EventTypeVaultConfigUpdate
	EventTypeManagerUpdate
	EventTypeLiquidatorUpdate
	EventTypeAccountManagerApproval
	EventTypeFeeClaim
)

// EventEnvelope wraps every accepted event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Product context (0 for global events)
	ProductID uint32

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded event payload, decodable with Decode
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all inbound commands and feed updates implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// ProductID returns the product context (0 for global events)
	ProductID() uint32

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time
}

// Header carries the fields every caller-initiated command shares.
type Header struct {
	RequestID uuid.UUID `json:"request_id"`
	Caller    uuid.UUID `json:"caller"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Header) IdempotencyKey() string {
	return h.RequestID.String()
}

func (h *Header) OccurredAt() time.Time {
	return h.Timestamp
}

// global is embedded by commands that are not scoped to a product.
type global struct{}

func (global) ProductID() uint32 { return 0 }

func (et EventType) String() string {
	switch et {
	case EventTypeOpenPosition:
		return "OpenPosition"
	case EventTypeClosePosition:
		return "ClosePosition"
	case EventTypeModifyMargin:
		return "ModifyMargin"
	case EventTypeLiquidatePosition:
		return "LiquidatePosition"
	case EventTypeStake:
		return "Stake"
	case EventTypeRedeem:
		return "Redeem"
	case EventTypeCollateralDeposit:
		return "CollateralDeposit"
	case EventTypeCollateralWithdrawal:
		return "CollateralWithdrawal"
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	case EventTypeInterestRateUpdate:
		return "InterestRateUpdate"
	case EventTypeProductUpsert:
		return "ProductUpsert"
	case EventTypeParametersUpdate:
		return "ParametersUpdate"
	case EventTypeLiquidationThresholdUpdate:
		return "LiquidationThresholdUpdate"
	case EventTypeMinMarginUpdate:
		return "MinMarginUpdate"
	case EventTypeVaultConfigUpdate:
		return "VaultConfigUpdate"
	case EventTypeManagerUpdate:
		return "ManagerUpdate"
	case EventTypeLiquidatorUpdate:
		return "LiquidatorUpdate"
	case EventTypeAccountManagerApproval:
		return "AccountManagerApproval"
	case EventTypeFeeClaim:
		return "FeeClaim"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(name string) (EventType, error) {
	for et := EventTypeOpenPosition; et <= EventTypeFeeClaim; et++ {
		if et.String() == name {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type %q", name)
}
