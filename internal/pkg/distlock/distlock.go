// Package distlock serializes maintenance work that must run on at most one
// engine replica at a time, such as recomputing a journey's analytics
// snapshot. Redis is the preferred arbiter; when no client is configured the
// lock falls back to an advisory lock on the same Postgres the snapshots
// live in.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a non-blocking mutual-exclusion handle shared across replicas.
// Each would-be holder builds its own instance for the same name; a single
// instance must not be shared between goroutines.
type Lock interface {
	// TryAcquire reports whether this caller now holds the lock.
	// It never blocks waiting for the current holder.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this caller still owns it.
	Release(ctx context.Context) error
}

// New picks the backend for the named lock. Redis wins when a client is
// present since it arbitrates across hosts that share nothing but the cache;
// otherwise the database itself does.
func New(cache *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	if cache != nil {
		return newRedisLock(cache, name, ttl)
	}
	return newAdvisoryLock(db, name)
}

// advisoryLock rides pg_try_advisory_lock. Advisory locks are session
// scoped, so a dropped connection frees the lock much like a Redis TTL
// expiring would.
type advisoryLock struct {
	db  *sql.DB
	key int64
}

func newAdvisoryLock(db *sql.DB, name string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &advisoryLock{db: db, key: int64(h.Sum64())}
}

func (l *advisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	var held bool
	if err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&held); err != nil {
		return false, fmt.Errorf("advisory lock %d: %w", l.key, err)
	}
	return held, nil
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	return err
}
