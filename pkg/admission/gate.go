package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/stores"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

// pendingSentinel marks a claim-or-get slot whose admitted caller has not
// yet stored a result. It is not valid JSON so it can never collide with a
// stored response.
var pendingSentinel = []byte("__skillflow:pending__")

const claimPrefix = "admission:claim:"

// Gate is the idempotency admission gate. It guarantees that at most one
// caller receives "proceed" for a given key within the TTL window; all
// others receive a duplicate rejection (ClaimOnce) or the eventually cached
// result (ClaimOrGet).
//
// The gate does not fall back to another store when its backing store
// errors; degraded single-node operation is chosen explicitly by
// constructing the gate over a stores.MemoryStore.
type Gate struct {
	store  stores.KV
	logger *telemetry.Logger
}

// NewGate creates a gate over the given durable store.
func NewGate(store stores.KV, logger *telemetry.Logger) *Gate {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Gate{store: store, logger: logger.Component("admission")}
}

// NewDegradedGate creates a gate over an in-process store. Claims reset on
// process restart and provide no cross-process guarantee; acceptable for
// test and single-node environments only.
func NewDegradedGate(logger *telemetry.Logger) *Gate {
	return NewGate(stores.NewMemoryStore(), logger)
}

// resolveKey returns the caller-supplied key when present, otherwise the
// content fingerprint of the submission.
func resolveKey(intent string, payload map[string]any, key string) (string, error) {
	if key != "" {
		return key, nil
	}
	return Fingerprint(intent, payload)
}

// ClaimOnce claims the submission's key with a set-if-absent marker. The
// second claim within the TTL window fails with engine.ErrDuplicateRequest;
// no response caching is performed.
func (g *Gate) ClaimOnce(ctx context.Context, intent string, payload map[string]any, key string, ttl time.Duration) (string, error) {
	resolved, err := resolveKey(intent, payload, key)
	if err != nil {
		return "", err
	}

	ok, err := g.store.SetNX(ctx, claimPrefix+resolved, []byte("1"), ttl)
	if err != nil {
		return "", fmt.Errorf("%w: claim %s: %v", engine.ErrStoreUnavailable, resolved, err)
	}
	if !ok {
		return resolved, fmt.Errorf("%w: key %s", engine.ErrDuplicateRequest, resolved)
	}

	g.logger.WithIntent(intent).WithField("key", resolved).Debug("claim admitted")
	return resolved, nil
}

// ClaimOrGet claims the submission's key with a pending sentinel.
//
// Outcomes:
//   - admitted == true: this caller won the claim and must eventually call
//     StoreResult under the returned key.
//   - admitted == false, cached != nil: a previous admission completed;
//     cached holds its stored response.
//   - admitted == false, cached == nil: another admission is still in
//     flight; the caller should poll or retry.
func (g *Gate) ClaimOrGet(ctx context.Context, intent string, payload map[string]any, key string, ttl time.Duration) (resolved string, cached json.RawMessage, admitted bool, err error) {
	resolved, err = resolveKey(intent, payload, key)
	if err != nil {
		return "", nil, false, err
	}

	ok, err := g.store.SetNX(ctx, claimPrefix+resolved, pendingSentinel, ttl)
	if err != nil {
		return "", nil, false, fmt.Errorf("%w: claim %s: %v", engine.ErrStoreUnavailable, resolved, err)
	}
	if ok {
		g.logger.WithIntent(intent).WithField("key", resolved).Debug("claim admitted")
		return resolved, nil, true, nil
	}

	value, err := g.store.Get(ctx, claimPrefix+resolved)
	if err != nil {
		if errors.Is(err, stores.ErrKeyNotFound) {
			// Claim expired between SetNX and Get; treat as in flight
			// and let the caller retry.
			return resolved, nil, false, nil
		}
		return "", nil, false, fmt.Errorf("%w: read %s: %v", engine.ErrStoreUnavailable, resolved, err)
	}

	if bytes.Equal(value, pendingSentinel) {
		return resolved, nil, false, nil
	}
	return resolved, json.RawMessage(value), false, nil
}

// Release frees a claim slot before its TTL lapses by overwriting it with
// an already-expired entry. Callers use it when an admitted submission
// fails before dispatch, so retries of the same key are not locked out for
// the remainder of the window.
func (g *Gate) Release(ctx context.Context, key string) error {
	if err := g.store.Set(ctx, claimPrefix+key, pendingSentinel, time.Nanosecond); err != nil {
		return fmt.Errorf("%w: release %s: %v", engine.ErrStoreUnavailable, key, err)
	}
	g.logger.WithField("key", key).Debug("claim released")
	return nil
}

// StoreResult overwrites the claim slot with the final JSON-encoded
// response, making it visible to future ClaimOrGet callers within the TTL
// window.
func (g *Gate) StoreResult(ctx context.Context, key string, response any, ttl time.Duration) error {
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	if err := g.store.Set(ctx, claimPrefix+key, encoded, ttl); err != nil {
		return fmt.Errorf("%w: store result %s: %v", engine.ErrStoreUnavailable, key, err)
	}
	return nil
}
