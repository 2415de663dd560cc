// Package locks serializes writes per (source, date) partition so that
// concurrent deliveries for the same day never interleave their archive and
// daily-store appends.
package locks

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	goredislib "github.com/go-redis/redis/v8"

	"lifelog-ingest/internal/common/errors"
)

// Manager hands out exclusive locks by key. Release is returned rather than
// exposed on the manager so a lock cannot be released by a different holder.
type Manager interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local serializes within one process using a mutex per key. Sufficient for
// a single-instance deployment.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewLocal creates an in-process lock manager.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine still holds or will hold the mutex; release it as
		// soon as it lands so other waiters proceed.
		go func() {
			<-acquired
			l.release(key, e)
		}()
		return nil, errors.TimeoutError("lock acquire")
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e) })
	}, nil
}

func (l *Local) release(key string, e *entry) {
	e.mu.Unlock()
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// Distributed serializes across instances using redis-backed mutexes.
type Distributed struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewDistributed creates a redis-backed lock manager over an existing
// client.
func NewDistributed(client *goredislib.Client, expiry time.Duration) *Distributed {
	if expiry <= 0 {
		expiry = 30 * time.Second
	}
	pool := goredis.NewPool(client)
	return &Distributed{rs: redsync.New(pool), expiry: expiry}
}

func (d *Distributed) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := d.rs.NewMutex("lock:"+key, redsync.WithExpiry(d.expiry))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.TimeoutError("distributed lock acquire")
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// Best effort: an expired lock unlocks itself.
			_, _ = mutex.Unlock()
		})
	}, nil
}
