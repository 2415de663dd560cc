// Package dedup recognizes retried webhook deliveries. Two independent
// sources of truth sit behind one Checker interface: a volatile in-process
// tier that absorbs retry storms within a run, and the persistent archive
// that survives restarts. An optional redis tier lets multiple replicas
// share the fast path. Checkers compose in a chain so each can be tested
// and swapped independently.
package dedup

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"lifelog-ingest/internal/storage"
)

// Key identifies one delivery instance for dedup purposes. An empty
// DedupeKey means the delivery carries no identity and dedup is bypassed.
type Key struct {
	Source    string
	EventType string
	Date      string
	DedupeKey string
}

// Zero reports whether dedup should be skipped for this key.
func (k Key) Zero() bool { return k.DedupeKey == "" }

// String renders the key for set membership and logging.
func (k Key) String() string {
	return strings.Join([]string{k.Source, k.Date, k.EventType, k.DedupeKey}, "|")
}

// Checker is one dedup tier.
type Checker interface {
	// Seen reports whether the key was observed before.
	Seen(ctx context.Context, key Key) (bool, error)
	// Remember records the key so later deliveries are recognized.
	Remember(ctx context.Context, key Key) error
}

// Volatile is the in-process tier. It intentionally resets on restart; the
// archive tier covers that case. Entries age out after the TTL since a
// provider's retry window is bounded.
type Volatile struct {
	set *gocache.Cache
}

// NewVolatile creates the in-process tier with the given retention.
func NewVolatile(ttl time.Duration) *Volatile {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Volatile{set: gocache.New(ttl, 10*time.Minute)}
}

func (v *Volatile) Seen(_ context.Context, key Key) (bool, error) {
	if key.Zero() {
		return false, nil
	}
	_, found := v.set.Get(key.String())
	return found, nil
}

func (v *Volatile) Remember(_ context.Context, key Key) error {
	if key.Zero() {
		return nil
	}
	v.set.SetDefault(key.String(), struct{}{})
	return nil
}

// redisMarker is the subset of the redis client the shared tier needs.
type redisMarker interface {
	Exists(ctx context.Context, key string) (bool, error)
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Redis is the optional shared tier backed by redis, letting multiple
// replicas converge on the fast path.
type Redis struct {
	client redisMarker
	ttl    time.Duration
}

// NewRedis creates the shared tier. Keys expire after ttl.
func NewRedis(client redisMarker, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Seen(ctx context.Context, key Key) (bool, error) {
	if key.Zero() {
		return false, nil
	}
	return r.client.Exists(ctx, "dedup:"+key.String())
}

func (r *Redis) Remember(ctx context.Context, key Key) error {
	if key.Zero() {
		return nil
	}
	_, err := r.client.MarkOnce(ctx, "dedup:"+key.String(), r.ttl)
	return err
}

// Archive is the persistent tier: a delivery is a duplicate when a record
// with the same (source, date, eventType, dedupeKey) was already archived.
// Remember is a no-op because the archive append itself is the record.
type Archive struct {
	store storage.Storage
}

// NewArchive creates the persistent tier over the storage adapter.
func NewArchive(store storage.Storage) *Archive {
	return &Archive{store: store}
}

func (a *Archive) Seen(ctx context.Context, key Key) (bool, error) {
	if key.Zero() {
		return false, nil
	}
	return a.store.HasArchiveRecord(ctx, key.Source, key.Date, key.EventType, key.DedupeKey)
}

func (a *Archive) Remember(context.Context, Key) error { return nil }

// Chain composes checkers in order. Seen short-circuits on the first tier
// that recognizes the key; Remember fans out to every tier.
type Chain struct {
	checkers []Checker
}

// NewChain builds a chain from fast to slow tiers.
func NewChain(checkers ...Checker) *Chain {
	return &Chain{checkers: checkers}
}

func (c *Chain) Seen(ctx context.Context, key Key) (bool, error) {
	if key.Zero() {
		return false, nil
	}
	for _, checker := range c.checkers {
		seen, err := checker.Seen(ctx, key)
		if err != nil {
			return false, err
		}
		if seen {
			return true, nil
		}
	}
	return false, nil
}

func (c *Chain) Remember(ctx context.Context, key Key) error {
	if key.Zero() {
		return nil
	}
	for _, checker := range c.checkers {
		if err := checker.Remember(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
