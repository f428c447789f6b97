package persistence

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRowRoundTrip(t *testing.T) {
	env := &event.EventEnvelope{
		Sequence:       42,
		IdempotencyKey: uuid.NewString(),
		EventType:      event.EventTypeClosePosition,
		ProductID:      3,
		Timestamp:      time.Unix(1_700_000_000, 0).UTC(),
		Payload:        []byte(`{"margin":100}`),
		StateHash:      [32]byte{1, 2, 3},
		PrevHash:       [32]byte{9},
	}

	row := EventRowFromEnvelope(env)
	assert.Equal(t, "ClosePosition", row.EventType)
	assert.Equal(t, int64(3), row.ProductID)

	back, err := EnvelopeFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, env, back)

	row.StateHash = row.StateHash[:16]
	_, err = EnvelopeFromRow(row)
	assert.Error(t, err)

	row.EventType = "TradeFill"
	_, err = EnvelopeFromRow(row)
	assert.Error(t, err)
}

func TestJournalRowsFromBatch(t *testing.T) {
	user := uuid.New()
	gen := ledger.NewJournalGenerator("Stake:req-1", 1_700_000_000_000_000)
	gen.Deposit(user, 500).Stake(user, 200)
	b := gen.Batch()
	b.Stamp(7)

	rows := JournalRowsFromBatch(b)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, int64(7), r.Sequence)
		assert.Equal(t, b.BatchID, r.BatchID)
		assert.Equal(t, "Stake:req-1", r.EventRef)
		assert.Positive(t, r.Amount)
	}
	assert.Equal(t, ledger.NewUserAccountKey(user, ledger.SubTypeCollateral).AccountPath(), rows[0].DebitAccount)
	assert.Equal(t, ledger.VaultAccount.AccountPath(), rows[1].DebitAccount)

	assert.Nil(t, JournalRowsFromBatch(nil))
}

func TestErrorClass(t *testing.T) {
	assert.Equal(t, "constraint", errorClass(&pq.Error{Code: "23505"}))
	assert.Equal(t, "connection", errorClass(&pq.Error{Code: "08006"}))
	assert.Equal(t, "pg_42", errorClass(&pq.Error{Code: "42P01"}))
	assert.Equal(t, "other", errorClass(errors.New("boom")))
}

func TestMigrationFilesOrdered(t *testing.T) {
	files := fstest.MapFS{
		"000002_projections.up.sql":   {Data: []byte("SELECT 1")},
		"000001_event_log.up.sql":     {Data: []byte("SELECT 1")},
		"000001_event_log.down.sql":   {Data: []byte("SELECT 1")},
		"000002_projections.down.sql": {Data: []byte("SELECT 1")},
		"README.md":                   {Data: []byte("docs")},
	}
	m := NewMigrator(nil, files, zerolog.Nop())

	up, err := m.listMigrationFiles(".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_event_log.up.sql", "000002_projections.up.sql"}, up)
	assert.Equal(t, "000002", extractVersion(up[1]))
}
