package audit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/store"
)

func newTestLog(t *testing.T) (*Log, schemas.Store) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory(nil)
	require.NoError(t, st.Init(ctx))

	l, err := New(st, nil)
	require.NoError(t, err)
	require.NoError(t, l.Open(ctx))
	return l, st
}

func appendN(t *testing.T, l *Log, n int) []schemas.AuditRecord {
	t.Helper()
	records := make([]schemas.AuditRecord, 0, n)
	for i := 0; i < n; i++ {
		rec, err := l.Append(context.Background(), schemas.AuditActionGenerated,
			fmt.Sprintf("ref-%d", i), "user-1", map[string]interface{}{"n": i})
		require.NoError(t, err)
		records = append(records, rec)
	}
	return records
}

func TestLog_AppendChaining(t *testing.T) {
	l, _ := newTestLog(t)
	records := appendN(t, l, 3)

	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Empty(t, records[0].PrevHash, "first record anchors on the empty hash")
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].Hash, records[i].PrevHash, "record %d links to its predecessor", i)
		assert.Equal(t, records[i-1].Sequence+1, records[i].Sequence)
	}
}

func TestLog_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("intact chain", func(t *testing.T) {
		l, _ := newTestLog(t)
		appendN(t, l, 5)
		assert.NoError(t, l.Verify(ctx))
	})

	t.Run("empty log verifies", func(t *testing.T) {
		l, _ := newTestLog(t)
		assert.NoError(t, l.Verify(ctx))
	})

	t.Run("tampered record detected", func(t *testing.T) {
		l, st := newTestLog(t)
		appendN(t, l, 3)

		// Flip a detail value of record 2 behind the log's back.
		key := recordKey(2)
		raw, ok, err := st.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
		tampered := bytes.Replace(raw, []byte(`"n":1`), []byte(`"n":9`), 1)
		require.NotEqual(t, raw, tampered, "fixture must actually change the record")
		require.NoError(t, st.Set(ctx, key, tampered))

		assert.ErrorIs(t, l.Verify(ctx), ErrChainBroken)
	})
}

func TestLog_OpenRecoversTail(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(nil)
	require.NoError(t, st.Init(ctx))

	first, err := New(st, nil)
	require.NoError(t, err)
	require.NoError(t, first.Open(ctx))
	appendN(t, first, 2)

	// A new log over the same store must continue the chain, not fork it.
	second, err := New(st, nil)
	require.NoError(t, err)
	require.NoError(t, second.Open(ctx))
	rec, err := second.Append(ctx, schemas.AuditActionExecuted, "ref-x", "user-1", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), rec.Sequence)
	assert.NoError(t, second.Verify(ctx))
}

func TestLog_Prune(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)

	current := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	appendN(t, l, 2)
	current = current.Add(48 * time.Hour)
	appendN(t, l, 2)

	dropped, err := l.Prune(ctx, current.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	records, err := l.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(3), records[0].Sequence)

	// The surviving head's PrevHash re-anchors the chain.
	assert.NoError(t, l.Verify(ctx))
}

func TestLog_ExportNDJSON(t *testing.T) {
	l, _ := newTestLog(t)
	appendN(t, l, 3)

	var buf bytes.Buffer
	require.NoError(t, l.Export(context.Background(), &buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "{"), "each line is a JSON object")
		assert.Contains(t, line, `"hash":`)
	}
}

func TestLog_Stats(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLog(t)

	appendN(t, l, 2)
	_, err := l.Append(ctx, schemas.AuditActionFailed, "ref-f", "user-1", nil)
	require.NoError(t, err)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStage[schemas.AuditActionGenerated])
	assert.Equal(t, 1, stats.ByStage[schemas.AuditActionFailed])
	assert.False(t, stats.Earliest.After(stats.Latest))
}
