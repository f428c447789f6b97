package state

import (
	"github.com/google/uuid"
)

// LedgerStore is the state the core reads and commits. Reads return copies;
// nothing a command computes is visible until Commit applies its ChangeSet.
type LedgerStore interface {
	Governor() uuid.UUID
	IsManager(addr uuid.UUID) bool
	IsAccountManager(owner, manager uuid.UUID) bool
	IsLiquidator(addr uuid.UUID) bool

	Product(id uint32) (Product, bool)
	Products() []Product
	Params() Params

	Position(id uuid.UUID) (Position, bool)
	Positions() []Position
	OpenInterest(productID uint32) OpenInterest

	Vault() Vault
	Stake(owner uuid.UUID) (Stake, bool)
	Stakes() []Stake
	FeePools() FeePools

	OraclePrice(feed string) (PriceMark, bool)
	InterestRate(productID uint32) (RateMark, bool)

	Commit(cs *ChangeSet)
}

// ChangeSet stages the writes of one command.
type ChangeSet struct {
	Positions       map[uuid.UUID]*Position // nil value deletes
	OpenInterest    map[uint32]OpenInterest
	Vault           *Vault
	Stakes          map[uuid.UUID]*Stake // nil value deletes
	FeePools        *FeePools
	Products        map[uint32]Product
	Params          *Params
	Prices          map[string]PriceMark
	Rates           map[uint32]RateMark
	Managers        map[uuid.UUID]bool
	AccountManagers map[ManagerGrant]bool
	Liquidators     map[uuid.UUID]bool
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{}
}

func (cs *ChangeSet) PutPosition(p Position) {
	if cs.Positions == nil {
		cs.Positions = make(map[uuid.UUID]*Position)
	}
	cs.Positions[p.ID] = &p
}

func (cs *ChangeSet) DeletePosition(id uuid.UUID) {
	if cs.Positions == nil {
		cs.Positions = make(map[uuid.UUID]*Position)
	}
	cs.Positions[id] = nil
}

func (cs *ChangeSet) SetOpenInterest(productID uint32, oi OpenInterest) {
	if cs.OpenInterest == nil {
		cs.OpenInterest = make(map[uint32]OpenInterest)
	}
	cs.OpenInterest[productID] = oi
}

func (cs *ChangeSet) SetVault(v Vault) {
	cs.Vault = &v
}

func (cs *ChangeSet) PutStake(s Stake) {
	if cs.Stakes == nil {
		cs.Stakes = make(map[uuid.UUID]*Stake)
	}
	if s.Shares == 0 {
		cs.Stakes[s.Owner] = nil
		return
	}
	cs.Stakes[s.Owner] = &s
}

func (cs *ChangeSet) SetFeePools(fp FeePools) {
	cs.FeePools = &fp
}

func (cs *ChangeSet) PutProduct(p Product) {
	if cs.Products == nil {
		cs.Products = make(map[uint32]Product)
	}
	cs.Products[p.ID] = p
}

func (cs *ChangeSet) SetParams(p Params) {
	cs.Params = &p
}

func (cs *ChangeSet) SetPrice(feed string, m PriceMark) {
	if cs.Prices == nil {
		cs.Prices = make(map[string]PriceMark)
	}
	cs.Prices[feed] = m
}

func (cs *ChangeSet) SetRate(productID uint32, m RateMark) {
	if cs.Rates == nil {
		cs.Rates = make(map[uint32]RateMark)
	}
	cs.Rates[productID] = m
}

func (cs *ChangeSet) SetManager(addr uuid.UUID, enabled bool) {
	if cs.Managers == nil {
		cs.Managers = make(map[uuid.UUID]bool)
	}
	cs.Managers[addr] = enabled
}

func (cs *ChangeSet) SetAccountManager(owner, manager uuid.UUID, approved bool) {
	if cs.AccountManagers == nil {
		cs.AccountManagers = make(map[ManagerGrant]bool)
	}
	cs.AccountManagers[ManagerGrant{Owner: owner, Manager: manager}] = approved
}

func (cs *ChangeSet) SetLiquidator(addr uuid.UUID, enabled bool) {
	if cs.Liquidators == nil {
		cs.Liquidators = make(map[uuid.UUID]bool)
	}
	cs.Liquidators[addr] = enabled
}
