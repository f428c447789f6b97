package core

import "errors"

// Validation errors: malformed or unauthorized requests.
var (
	ErrUnknownProduct      = errors.New("unknown product")
	ErrProductInactive     = errors.New("product is not active")
	ErrLeverageOutOfBounds = errors.New("leverage out of bounds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnauthorized        = errors.New("caller not authorized")
	ErrPositionNotFound    = errors.New("position not found")
	ErrStakeNotFound       = errors.New("stake not found")
	ErrUnknownEvent        = errors.New("unknown event type")
	ErrDuplicate           = errors.New("duplicate request")
	ErrFutureTimestamp     = errors.New("timestamp ahead of core clock")
)

// Economic guards: well-formed requests the current state cannot honor.
var (
	ErrPriceExceedsBound      = errors.New("execution price violates acceptable price")
	ErrExposureCapExceeded    = errors.New("open interest would exceed exposure cap")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrVaultInsolvent         = errors.New("vault balance cannot cover payout")
	ErrDepositCapExceeded     = errors.New("vault deposit cap exceeded")
	ErrCooldownActive         = errors.New("redeem cooldown active")
	ErrInsufficientShares     = errors.New("insufficient shares")
	ErrNoOraclePrice          = errors.New("no oracle price for feed")
	ErrStaleFeed              = errors.New("feed update older than current mark")
)

// ErrNotLiquidatable is returned when a position is still above its
// liquidation threshold.
var ErrNotLiquidatable = errors.New("position is not liquidatable")

// rejectReason maps an error to a low-cardinality metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrStaleFeed):
		return "stale_feed"
	case errors.Is(err, ErrPriceExceedsBound),
		errors.Is(err, ErrExposureCapExceeded),
		errors.Is(err, ErrInsufficientCollateral),
		errors.Is(err, ErrInsufficientMargin),
		errors.Is(err, ErrVaultInsolvent),
		errors.Is(err, ErrDepositCapExceeded),
		errors.Is(err, ErrCooldownActive),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrNoOraclePrice):
		return "economic"
	default:
		return "validation"
	}
}
