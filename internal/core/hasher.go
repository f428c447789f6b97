package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"PerpVault/internal/ledger"
)

const GenesisHashSeed = "PerpVault:genesis:v1"

// StateHasher chains state hashes across the event log.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher starts the chain at the genesis hash.
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(GenesisHashSeed))}
}

// ComputeHash returns SHA-256(prev_hash || sequence || state_digest) and
// advances the chain tip.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])
	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// GetPrevHash returns the current chain tip.
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash resumes the chain from a snapshot.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// balancesDigest hashes account balances in a canonical order so that two
// trackers with equal balances always produce the same bytes.
func balancesDigest(balances map[ledger.AccountKey]int64) []byte {
	keys := make([]ledger.AccountKey, 0, len(balances))
	for k, v := range balances {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if c := bytes.Compare(a.EntityID[:], b.EntityID[:]); c != 0 {
			return c < 0
		}
		return a.SubType < b.SubType
	})

	h := sha256.New()
	var buf [8]byte
	for _, k := range keys {
		h.Write([]byte{byte(k.Scope), byte(k.SubType)})
		h.Write(k.EntityID[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(balances[k]))
		h.Write(buf[:])
	}
	return h.Sum(nil)
}
