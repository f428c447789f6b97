package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDB struct {
	seen map[string]bool
	err  error
}

func (s *stubDB) IsDuplicate(eventType, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[eventType+"/"+key], nil
}

func TestIdempotencyLRU_EvictsOldest(t *testing.T) {
	lru := NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	assert.True(t, lru.Contains("a")) // promotes a
	lru.Add("c")

	assert.False(t, lru.Contains("b"))
	assert.True(t, lru.Contains("a"))
	assert.True(t, lru.Contains("c"))
	assert.Equal(t, int64(1), lru.Evictions())
	assert.Equal(t, 2, lru.Size())
}

func TestIdempotencyLRU_KeysRoundTripThroughWarm(t *testing.T) {
	lru := NewIdempotencyLRU(3)
	lru.Warm([]string{"x", "y", "z"})
	assert.Equal(t, []string{"x", "y", "z"}, lru.Keys())

	restored := NewIdempotencyLRU(3)
	restored.Warm(lru.Keys())
	restored.Add("w")
	assert.False(t, restored.Contains("x"), "oldest key goes first")
}

func TestIdempotencyChecker_Tiers(t *testing.T) {
	db := &stubDB{seen: map[string]bool{"stake/req-1": true}}
	ic := NewIdempotencyChecker(8, db)
	var tiers []string
	ic.OnDuplicate(func(_, tier string) { tiers = append(tiers, tier) })

	assert.True(t, ic.IsDuplicate("stake", "req-1"))
	assert.True(t, ic.IsDuplicate("stake", "req-1"))
	assert.Equal(t, []string{"postgres", "lru"}, tiers, "a database hit warms the LRU")

	assert.False(t, ic.IsDuplicate("stake", "req-2"))
	ic.MarkProcessed("stake", "req-2")
	assert.True(t, ic.IsDuplicate("stake", "req-2"))

	// Same key, different command type.
	assert.False(t, ic.IsDuplicate("redeem", "req-2"))
}

func TestIdempotencyChecker_DatabaseErrorFailsOpen(t *testing.T) {
	ic := NewIdempotencyChecker(8, &stubDB{err: errors.New("connection reset")})
	assert.False(t, ic.IsDuplicate("stake", "req-1"))
	assert.Equal(t, int64(1), ic.Tier2Errors())
}

func TestSequenceValidator(t *testing.T) {
	sv := NewSequenceValidator()
	var gaps, stale int
	sv.onGap = func(string, int64, int64) { gaps++ }
	sv.onStale = func(string) { stale++ }

	require.NoError(t, sv.Check("price:ETH-USD", 0, false, 42))
	require.NoError(t, sv.Check("price:ETH-USD", 42, true, 43))
	require.NoError(t, sv.Check("price:ETH-USD", 43, true, 50))
	assert.Equal(t, 1, gaps)

	require.ErrorIs(t, sv.Check("price:ETH-USD", 50, true, 50), ErrStaleFeed)
	require.ErrorIs(t, sv.Check("rate:1", 3, true, 2), ErrStaleFeed)
	assert.Equal(t, 2, stale)

	assert.Equal(t, "price:BTC-USD", pricePartition("BTC-USD"))
	assert.Equal(t, "rate:7", ratePartition(7))
}
