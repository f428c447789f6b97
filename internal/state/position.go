package state

import (
	"encoding/binary"

	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// positionNamespace seeds deterministic position ids.
var positionNamespace = uuid.MustParse("b3c6f1d4-8a2e-4f70-9c1b-2e5d7a9f0c38")

// PositionKey identifies a position: one per owner, product and side.
type PositionKey struct {
	Owner     uuid.UUID
	ProductID uint32
	IsLong    bool
}

// ID returns the stable position id derived from the key.
func (k PositionKey) ID() uuid.UUID {
	var buf [21]byte
	copy(buf[:16], k.Owner[:])
	binary.BigEndian.PutUint32(buf[16:20], k.ProductID)
	if k.IsLong {
		buf[20] = 1
	}
	return uuid.NewSHA1(positionNamespace, buf[:])
}

// Position is an open leveraged position. It exists only while Margin > 0.
type Position struct {
	ID               uuid.UUID       `json:"id"`
	Owner            uuid.UUID       `json:"owner"`
	ProductID        uint32          `json:"product_id"`
	IsLong           bool            `json:"is_long"`
	Margin           fpmath.Amount   `json:"margin"`
	Leverage         fpmath.Leverage `json:"leverage"`
	Price            fpmath.Price    `json:"price"`        // entry price
	OraclePrice      fpmath.Price    `json:"oracle_price"` // reference price at last open
	Timestamp        int64           `json:"timestamp"`    // unix seconds of last open/increase
	FundingTimestamp int64           `json:"funding_timestamp"`
	Funding          fpmath.Amount   `json:"funding"` // cumulative funding charged
}

// Key returns the position's identity.
func (p *Position) Key() PositionKey {
	return PositionKey{Owner: p.Owner, ProductID: p.ProductID, IsLong: p.IsLong}
}

// IsOpen reports whether the position holds margin.
func (p *Position) IsOpen() bool {
	return p.Margin > 0
}

// Notional returns margin * leverage.
func (p *Position) Notional() (fpmath.Amount, error) {
	return fpmath.Notional(p.Margin, p.Leverage)
}

// SideSign returns +1 for long, -1 for short
func (p *Position) SideSign() int64 {
	if p.IsLong {
		return 1
	}
	return -1
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)

	buf = append(buf, p.ID[:]...)
	buf = append(buf, p.Owner[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, p.ProductID)
	if p.IsLong {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendInt64LE(buf, int64(p.Margin))
	buf = appendInt64LE(buf, int64(p.Leverage))
	buf = appendInt64LE(buf, int64(p.Price))
	buf = appendInt64LE(buf, int64(p.OraclePrice))
	buf = appendInt64LE(buf, p.Timestamp)
	buf = appendInt64LE(buf, p.FundingTimestamp)
	buf = appendInt64LE(buf, int64(p.Funding))

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(buf, uint64(v))
}
