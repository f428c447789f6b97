package core

import (
	"PerpVault/internal/ledger"
	"PerpVault/internal/state"
)

// AccountBalance is one ledger account in a snapshot.
type AccountBalance struct {
	Account ledger.AccountKey `json:"account"`
	Balance int64             `json:"balance"`
}

// SnapshotState is everything needed to resume the core without replaying
// the log from genesis.
type SnapshotState struct {
	Sequence        int64            `json:"sequence"`
	StateHash       [32]byte         `json:"state_hash"`
	LastTime        int64            `json:"last_time_us"`
	Store           state.Snapshot   `json:"store"`
	Balances        []AccountBalance `json:"balances"`
	IdempotencyKeys []string         `json:"idempotency_keys"`
}

// CreateSnapshotState captures the committed state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	balances := e.tracker.Snapshot()
	snap := &SnapshotState{
		Sequence:        e.sequence,
		StateHash:       e.hasher.GetPrevHash(),
		LastTime:        e.lastTime,
		Store:           e.store.Export(),
		Balances:        make([]AccountBalance, 0, len(balances)),
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}
	for k, v := range balances {
		if v != 0 {
			snap.Balances = append(snap.Balances, AccountBalance{Account: k, Balance: v})
		}
	}
	return snap
}

// RestoreEngine rebuilds an engine from a snapshot; replay continues at
// snap.Sequence+1.
func RestoreEngine(snap *SnapshotState, opts Options) *Engine {
	e := NewEngine(state.RestoreMemStore(snap.Store), opts)
	e.sequence = snap.Sequence
	e.lastTime = snap.LastTime
	e.hasher.SetPrevHash(snap.StateHash)

	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for _, b := range snap.Balances {
		balances[b.Account] = b.Balance
	}
	e.tracker.Restore(balances)
	e.idempotency.lru.Warm(snap.IdempotencyKeys)
	return e
}

// WarmLRU loads recently persisted idempotency keys, oldest first.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.Warm(keys)
	if e.metrics != nil {
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.lru.Size()))
	}
}
