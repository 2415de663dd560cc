package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/redis"
	"lifelog-ingest/internal/storage"
)

var testKey = Key{Source: "whoop", EventType: "workout", Date: "2025-01-01", DedupeKey: "whoop:w1"}

func TestVolatileSeenAfterRemember(t *testing.T) {
	v := NewVolatile(time.Hour)
	ctx := context.Background()

	seen, err := v.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, v.Remember(ctx, testKey))

	seen, err = v.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, seen)

	other := testKey
	other.DedupeKey = "whoop:w2"
	seen, err = v.Seen(ctx, other)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEmptyDedupeKeyBypassesDedup(t *testing.T) {
	v := NewVolatile(time.Hour)
	ctx := context.Background()

	key := Key{Source: "shortcut", EventType: "log", Date: "2025-01-01"}
	require.NoError(t, v.Remember(ctx, key))

	// Deliveries without a dedupe key are always treated as new.
	seen, err := v.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	chain := NewChain(v)
	seen, err = chain.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClientFromAddr(mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	r := NewRedis(client, time.Hour)
	ctx := context.Background()

	seen, err := r.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, r.Remember(ctx, testKey))

	seen, err = r.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestArchiveTier(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a := NewArchive(store)
	ctx := context.Background()

	seen, err := a.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.AppendArchiveRecord(ctx, &models.ArchiveRecord{
		Source:     testKey.Source,
		Date:       testKey.Date,
		EventType:  testKey.EventType,
		DedupeKey:  testKey.DedupeKey,
		ReceivedAt: time.Now(),
	}))

	seen, err = a.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestChainShortCircuitAndFanOut(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	volatile := NewVolatile(time.Hour)
	chain := NewChain(volatile, NewArchive(store))
	ctx := context.Background()

	seen, err := chain.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, seen)

	// Archive knows the key but the volatile tier does not: the chain
	// still recognizes it.
	require.NoError(t, store.AppendArchiveRecord(ctx, &models.ArchiveRecord{
		Source:     testKey.Source,
		Date:       testKey.Date,
		EventType:  testKey.EventType,
		DedupeKey:  testKey.DedupeKey,
		ReceivedAt: time.Now(),
	}))

	seen, err = chain.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, seen)

	// Remember fans out to the volatile tier.
	require.NoError(t, chain.Remember(ctx, testKey))
	seen, err = volatile.Seen(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, seen)
}
