package core

import (
	"container/list"
	"fmt"
)

// DBIdempotencyChecker looks up keys that already reached the event log.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// DuplicateObserver is told which tier caught a duplicate.
type DuplicateObserver func(eventType, tier string)

// IdempotencyChecker deduplicates request ids in two tiers: an in-memory
// LRU of recent keys and, on miss, the persisted event log.
// Not thread-safe: only the core goroutine calls it.
type IdempotencyChecker struct {
	lru       *IdempotencyLRU
	dbChecker DBIdempotencyChecker
	observe   DuplicateObserver

	tier2Errors int64
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// OnDuplicate installs a callback, typically a metrics counter.
func (ic *IdempotencyChecker) OnDuplicate(fn DuplicateObserver) {
	ic.observe = fn
}

func compositeKey(eventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", eventType, idempotencyKey)
}

// IsDuplicate reports whether the request was already committed.
func (ic *IdempotencyChecker) IsDuplicate(eventType string, idempotencyKey string) bool {
	key := compositeKey(eventType, idempotencyKey)
	if ic.lru.Contains(key) {
		ic.record(eventType, "lru")
		return true
	}

	if ic.dbChecker == nil {
		return false
	}
	isDup, err := ic.dbChecker.IsDuplicate(eventType, idempotencyKey)
	if err != nil {
		// A database hiccup must not stall the core; the unique index on
		// the event log rejects a true duplicate at write time.
		ic.tier2Errors++
		return false
	}
	if isDup {
		ic.record(eventType, "postgres")
		ic.lru.Add(key)
		return true
	}
	return false
}

func (ic *IdempotencyChecker) record(eventType, tier string) {
	if ic.observe != nil {
		ic.observe(eventType, tier)
	}
}

// MarkProcessed remembers a committed request.
func (ic *IdempotencyChecker) MarkProcessed(eventType string, idempotencyKey string) {
	ic.lru.Add(compositeKey(eventType, idempotencyKey))
}

// Tier2Errors returns how many database lookups failed.
func (ic *IdempotencyChecker) Tier2Errors() int64 {
	return ic.tier2Errors
}

// IdempotencyLRU is a bounded set of recently seen composite keys.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List

	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Contains reports membership and promotes the key.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, ok := lru.cache[key]
	if ok {
		lru.order.MoveToFront(elem)
	}
	return ok
}

// Add inserts or promotes key, evicting the least recently used entry when full.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, ok := lru.cache[key]; ok {
		lru.order.MoveToFront(elem)
		return
	}
	lru.cache[key] = lru.order.PushFront(key)
	if lru.order.Len() > lru.capacity {
		oldest := lru.order.Back()
		lru.order.Remove(oldest)
		delete(lru.cache, oldest.Value.(string))
		lru.evictions++
	}
}

// Warm loads keys oldest first so the newest end up most recently used.
func (lru *IdempotencyLRU) Warm(keys []string) {
	for _, k := range keys {
		lru.Add(k)
	}
}

// Keys returns the cached keys, least recently used first.
func (lru *IdempotencyLRU) Keys() []string {
	out := make([]string, 0, lru.order.Len())
	for e := lru.order.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.(string))
	}
	return out
}

func (lru *IdempotencyLRU) Size() int {
	return lru.order.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
