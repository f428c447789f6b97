package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"PerpVault/internal/core"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSnapshots struct {
	logged   int64
	saved    []int64
	verified []int64
}

func (m *memSnapshots) GetLatestSequence(context.Context) (int64, error) {
	return m.logged, nil
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, snap *core.SnapshotState) (int, error) {
	m.saved = append(m.saved, snap.Sequence)
	return 1, nil
}

func (m *memSnapshots) MarkVerified(_ context.Context, sequence int64) error {
	m.verified = append(m.verified, sequence)
	return nil
}

func TestSaveFinalSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("log caught up", func(t *testing.T) {
		store := &memSnapshots{logged: 42}
		require.NoError(t, saveFinalSnapshot(ctx, zerolog.Nop(), store, &core.SnapshotState{Sequence: 42}))
		assert.Equal(t, []int64{42}, store.saved)
		assert.Equal(t, []int64{42}, store.verified)
	})

	t.Run("log behind core", func(t *testing.T) {
		store := &memSnapshots{logged: 40}
		err := saveFinalSnapshot(ctx, zerolog.Nop(), store, &core.SnapshotState{Sequence: 42})
		require.ErrorIs(t, err, errLogBehind)
		assert.Empty(t, store.saved)
		assert.Empty(t, store.verified)
	})

	t.Run("nothing committed", func(t *testing.T) {
		store := &memSnapshots{}
		require.NoError(t, saveFinalSnapshot(ctx, zerolog.Nop(), store, &core.SnapshotState{}))
		assert.Empty(t, store.saved)
	})
}

func TestWaitDrained(t *testing.T) {
	var wg sync.WaitGroup
	assert.True(t, waitDrained(wg.Wait, time.Second))

	wg.Add(1)
	assert.False(t, waitDrained(wg.Wait, 20*time.Millisecond))
	wg.Done()
}
