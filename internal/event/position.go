package event

import (
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// OpenPosition opens a position or increases an existing one on the same
// (owner, product, side) key.
type OpenPosition struct {
	Header
	Owner           uuid.UUID       `json:"owner"`
	Product         uint32          `json:"product_id"`
	IsLong          bool            `json:"is_long"`
	Margin          fpmath.Amount   `json:"margin"`
	Leverage        fpmath.Leverage `json:"leverage"`
	AcceptablePrice fpmath.Price    `json:"acceptable_price"`
}

func (o *OpenPosition) EventType() EventType { return EventTypeOpenPosition }
func (o *OpenPosition) ProductID() uint32    { return o.Product }

// ClosePosition closes Margin worth of a position, fully or partially.
// When PositionID is set it takes precedence over (Owner, Product, IsLong).
type ClosePosition struct {
	Header
	PositionID      uuid.UUID     `json:"position_id,omitempty"`
	Owner           uuid.UUID     `json:"owner"`
	Product         uint32        `json:"product_id"`
	IsLong          bool          `json:"is_long"`
	Margin          fpmath.Amount `json:"margin"`
	AcceptablePrice fpmath.Price  `json:"acceptable_price"`
}

func (c *ClosePosition) EventType() EventType { return EventTypeClosePosition }
func (c *ClosePosition) ProductID() uint32    { return c.Product }

// ModifyMargin adds or removes collateral without changing notional.
type ModifyMargin struct {
	Header
	global
	PositionID uuid.UUID     `json:"position_id"`
	Amount     fpmath.Amount `json:"amount"`
	IsIncrease bool          `json:"is_increase"`
}

func (m *ModifyMargin) EventType() EventType { return EventTypeModifyMargin }

// LiquidatePosition force-closes an under-collateralized position.
// A zero MarkPrice means "use the oracle".
type LiquidatePosition struct {
	Header
	Owner     uuid.UUID    `json:"owner"`
	Product   uint32       `json:"product_id"`
	IsLong    bool         `json:"is_long"`
	MarkPrice fpmath.Price `json:"mark_price"`
}

func (l *LiquidatePosition) EventType() EventType { return EventTypeLiquidatePosition }
func (l *LiquidatePosition) ProductID() uint32    { return l.Product }
