package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/storage"
)

func TestRecordAndList(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	l := New(store, logging.NopLogger{})
	ctx := context.Background()

	l.Record(ctx, "whoop", "workout", "2025-10-02", "whoop:w1", `{"id":"w1"}`)
	l.Record(ctx, "shortcut", "log", "2025-10-02", "", `{"entries":[]}`)

	records, err := l.List(ctx, storage.EventLogFilters{Source: "whoop"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "workout", records[0].EventType)
	assert.Equal(t, "accepted", records[0].Status)
	assert.Equal(t, `{"id":"w1"}`, records[0].Body)

	records, err = l.List(ctx, storage.EventLogFilters{Day: "2025-10-02"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRecordFailureIsBestEffort(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	store.Close() // force append failures

	l := New(store, logging.NopLogger{})
	// Must not panic or propagate the error.
	l.Record(context.Background(), "whoop", "workout", "2025-10-02", "", "{}")
}

func TestPurge(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	l := New(store, logging.NopLogger{})
	ctx := context.Background()
	l.Record(ctx, "whoop", "workout", "2025-10-02", "", "{}")

	purged, err := l.Purge(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
