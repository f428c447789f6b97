package state

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Snapshot is the serializable form of a MemStore.
type Snapshot struct {
	Governor        uuid.UUID               `json:"governor"`
	Managers        []uuid.UUID             `json:"managers"`
	AccountManagers []ManagerGrant          `json:"account_managers"`
	Liquidators     []uuid.UUID             `json:"liquidators"`
	Products        []Product               `json:"products"`
	Params          Params                  `json:"params"`
	Positions       []Position              `json:"positions"`
	OpenInterest    map[uint32]OpenInterest `json:"open_interest"`
	Vault           Vault                   `json:"vault"`
	Stakes          []Stake                 `json:"stakes"`
	FeePools        FeePools                `json:"fee_pools"`
	Prices          map[string]PriceMark    `json:"prices"`
	Rates           map[uint32]RateMark     `json:"rates"`
}

// Export captures the store.
func (s *MemStore) Export() Snapshot {
	snap := Snapshot{
		Governor:     s.access.Governor,
		Managers:     sortedIDs(s.access.Managers),
		Liquidators:  sortedIDs(s.access.Liquidators),
		Products:     s.Products(),
		Params:       s.params,
		Positions:    s.Positions(),
		OpenInterest: make(map[uint32]OpenInterest, len(s.openInterest)),
		Vault:        s.vault,
		Stakes:       s.Stakes(),
		FeePools:     s.feePools,
		Prices:       make(map[string]PriceMark, len(s.prices)),
		Rates:        make(map[uint32]RateMark, len(s.rates)),
	}
	for grant := range s.access.AccountManagers {
		snap.AccountManagers = append(snap.AccountManagers, grant)
	}
	sort.Slice(snap.AccountManagers, func(i, j int) bool {
		a, b := snap.AccountManagers[i], snap.AccountManagers[j]
		if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Manager[:], b.Manager[:]) < 0
	})
	for k, v := range s.openInterest {
		snap.OpenInterest[k] = v
	}
	for k, v := range s.prices {
		snap.Prices[k] = v
	}
	for k, v := range s.rates {
		snap.Rates[k] = v
	}
	return snap
}

// RestoreMemStore rebuilds a store from a snapshot.
func RestoreMemStore(snap Snapshot) *MemStore {
	s := NewMemStore(snap.Governor, snap.Params)
	for _, id := range snap.Managers {
		s.access.Managers[id] = true
	}
	for _, g := range snap.AccountManagers {
		s.access.AccountManagers[g] = true
	}
	for _, id := range snap.Liquidators {
		s.access.Liquidators[id] = true
	}
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	for _, p := range snap.Positions {
		s.positions[p.ID] = p
	}
	for k, v := range snap.OpenInterest {
		s.openInterest[k] = v
	}
	s.vault = snap.Vault
	for _, st := range snap.Stakes {
		s.stakes[st.Owner] = st
	}
	s.feePools = snap.FeePools
	for k, v := range snap.Prices {
		s.prices[k] = v
	}
	for k, v := range snap.Rates {
		s.rates[k] = v
	}
	return s
}

func sortedIDs(m map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
