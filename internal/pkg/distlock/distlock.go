// Package distlock serializes watcher cycles across worker instances. Only
// one worker may scan the export bucket and claim jobs at a time; everyone
// else skips the cycle.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking distributed lock. A single goroutine owns one
// instance; concurrent holders need separate instances.
type DistLock interface {
	// Acquire tries to take the lock, returning true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release drops the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the best available backend: Redis when a client is
// configured, Postgres advisory locks otherwise. Both are crash-safe, Redis
// through the TTL and Postgres through session scoping.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// PGAdvisoryLock implements DistLock on pg_try_advisory_lock with a lock id
// hashed from the key.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
