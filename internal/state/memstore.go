package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/google/uuid"
)

// MemStore is the in-memory LedgerStore owned by the deterministic core.
// Not thread-safe: only the core goroutine touches it.
type MemStore struct {
	access       Access
	products     map[uint32]Product
	params       Params
	positions    map[uuid.UUID]Position
	openInterest map[uint32]OpenInterest
	vault        Vault
	stakes       map[uuid.UUID]Stake
	feePools     FeePools
	prices       map[string]PriceMark
	rates        map[uint32]RateMark
}

// NewMemStore creates an empty store governed by governor.
func NewMemStore(governor uuid.UUID, params Params) *MemStore {
	return &MemStore{
		access:       newAccess(governor),
		products:     make(map[uint32]Product),
		params:       params,
		positions:    make(map[uuid.UUID]Position),
		openInterest: make(map[uint32]OpenInterest),
		stakes:       make(map[uuid.UUID]Stake),
		prices:       make(map[string]PriceMark),
		rates:        make(map[uint32]RateMark),
	}
}

func (s *MemStore) Governor() uuid.UUID { return s.access.Governor }

func (s *MemStore) IsManager(addr uuid.UUID) bool { return s.access.Managers[addr] }

func (s *MemStore) IsAccountManager(owner, manager uuid.UUID) bool {
	return s.access.AccountManagers[ManagerGrant{Owner: owner, Manager: manager}]
}

func (s *MemStore) IsLiquidator(addr uuid.UUID) bool { return s.access.Liquidators[addr] }

func (s *MemStore) Product(id uint32) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

func (s *MemStore) Products() []Product {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) Params() Params { return s.params }

func (s *MemStore) Position(id uuid.UUID) (Position, bool) {
	p, ok := s.positions[id]
	return p, ok
}

// Positions returns all open positions ordered by id.
func (s *MemStore) Positions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out
}

func (s *MemStore) OpenInterest(productID uint32) OpenInterest { return s.openInterest[productID] }

func (s *MemStore) Vault() Vault { return s.vault }

func (s *MemStore) Stake(owner uuid.UUID) (Stake, bool) {
	st, ok := s.stakes[owner]
	return st, ok
}

// Stakes returns all stakes ordered by owner.
func (s *MemStore) Stakes() []Stake {
	out := make([]Stake, 0, len(s.stakes))
	for _, st := range s.stakes {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Owner[:], out[j].Owner[:]) < 0 })
	return out
}

func (s *MemStore) FeePools() FeePools { return s.feePools }

func (s *MemStore) OraclePrice(feed string) (PriceMark, bool) {
	m, ok := s.prices[feed]
	return m, ok
}

func (s *MemStore) InterestRate(productID uint32) (RateMark, bool) {
	m, ok := s.rates[productID]
	return m, ok
}

// Commit applies every staged write.
func (s *MemStore) Commit(cs *ChangeSet) {
	for id, p := range cs.Positions {
		if p == nil {
			delete(s.positions, id)
			continue
		}
		s.positions[id] = *p
	}
	for id, oi := range cs.OpenInterest {
		s.openInterest[id] = oi
	}
	if cs.Vault != nil {
		s.vault = *cs.Vault
	}
	for owner, st := range cs.Stakes {
		if st == nil {
			delete(s.stakes, owner)
			continue
		}
		s.stakes[owner] = *st
	}
	if cs.FeePools != nil {
		s.feePools = *cs.FeePools
	}
	for id, p := range cs.Products {
		s.products[id] = p
	}
	if cs.Params != nil {
		s.params = *cs.Params
	}
	for feed, m := range cs.Prices {
		s.prices[feed] = m
	}
	for id, m := range cs.Rates {
		s.rates[id] = m
	}
	for addr, ok := range cs.Managers {
		setFlag(s.access.Managers, addr, ok)
	}
	for grant, ok := range cs.AccountManagers {
		if ok {
			s.access.AccountManagers[grant] = true
		} else {
			delete(s.access.AccountManagers, grant)
		}
	}
	for addr, ok := range cs.Liquidators {
		setFlag(s.access.Liquidators, addr, ok)
	}
}

func setFlag(m map[uuid.UUID]bool, addr uuid.UUID, ok bool) {
	if ok {
		m[addr] = true
	} else {
		delete(m, addr)
	}
}

// Digest returns a deterministic hash of the economic state: positions,
// open interest, vault, stakes and fee pools.
func (s *MemStore) Digest() []byte {
	h := sha256.New()
	var buf [8]byte
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	for _, p := range s.Positions() {
		h.Write(p.CanonicalBytes())
	}

	ids := make([]uint32, 0, len(s.openInterest))
	for id := range s.openInterest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		oi := s.openInterest[id]
		put(int64(id))
		put(int64(oi.Long))
		put(int64(oi.Short))
	}

	put(int64(s.vault.Balance))
	put(int64(s.vault.Staked))
	put(int64(s.vault.Shares))

	for _, st := range s.Stakes() {
		h.Write(st.Owner[:])
		put(int64(st.Amount))
		put(int64(st.Shares))
		put(st.Timestamp)
	}

	put(int64(s.feePools.Protocol))
	put(int64(s.feePools.Staking))
	put(int64(s.feePools.Vault))

	return h.Sum(nil)
}
