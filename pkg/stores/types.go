package stores

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when a key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// KV is the durable store contract consumed by the admission gate and the
// run state store: a key/value store with atomic set-if-absent-with-ttl plus
// a recency index supporting upsert-by-score and reverse-range-by-score.
//
// All mutations are single-key atomic operations; no multi-key transactions
// are offered, so callers composing writes across keys must tolerate the
// window where one write lands and the next does not.
type KV interface {
	// SetNX atomically stores value under key only if the key is absent
	// or expired. Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the value under key, or ErrKeyNotFound if the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set unconditionally stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// UpsertRecency inserts or updates member's score within the named
	// index set.
	UpsertRecency(ctx context.Context, set, member string, score time.Time) error

	// RecentMembers returns up to limit members of the named index set,
	// most recent score first.
	RecentMembers(ctx context.Context, set string, limit int) ([]string, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// A ttl of zero or below means the entry never expires.
func expiryFrom(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}
