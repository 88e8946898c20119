package admission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/stores"
)

// brokenKV fails every operation, standing in for an unreachable store.
type brokenKV struct{}

func (brokenKV) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (brokenKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenKV) UpsertRecency(context.Context, string, string, time.Time) error {
	return errors.New("connection refused")
}
func (brokenKV) RecentMembers(context.Context, string, int) ([]string, error) {
	return nil, errors.New("connection refused")
}
func (brokenKV) HealthCheck(context.Context) error { return errors.New("connection refused") }
func (brokenKV) Close() error                      { return nil }

func TestClaimOnceAdmitsThenRejects(t *testing.T) {
	gate := NewGate(stores.NewMemoryStore(), nil)
	ctx := context.Background()
	payload := map[string]any{"email": "a@b.com"}

	key, err := gate.ClaimOnce(ctx, "lead.intake", payload, "", time.Minute)
	if err != nil {
		t.Fatalf("first ClaimOnce() error = %v", err)
	}
	if key == "" {
		t.Fatal("first ClaimOnce() returned empty key")
	}

	again, err := gate.ClaimOnce(ctx, "lead.intake", payload, "", time.Minute)
	if !errors.Is(err, engine.ErrDuplicateRequest) {
		t.Errorf("second ClaimOnce() = %v, want ErrDuplicateRequest", err)
	}
	if again != key {
		t.Errorf("duplicate resolved to %s, want the same key %s", again, key)
	}
}

func TestClaimOnceExplicitKey(t *testing.T) {
	gate := NewGate(stores.NewMemoryStore(), nil)
	ctx := context.Background()

	key, err := gate.ClaimOnce(ctx, "lead.intake", map[string]any{"n": 1}, "order-42", time.Minute)
	if err != nil {
		t.Fatalf("ClaimOnce() error = %v", err)
	}
	if key != "order-42" {
		t.Errorf("key = %s, want the caller-supplied key", key)
	}

	// A different payload under the same explicit key is still a duplicate.
	_, err = gate.ClaimOnce(ctx, "lead.intake", map[string]any{"n": 2}, "order-42", time.Minute)
	if !errors.Is(err, engine.ErrDuplicateRequest) {
		t.Errorf("ClaimOnce() = %v, want ErrDuplicateRequest", err)
	}
}

func TestClaimOnceStoreUnavailable(t *testing.T) {
	gate := NewGate(brokenKV{}, nil)

	_, err := gate.ClaimOnce(context.Background(), "lead.intake", nil, "k", time.Minute)
	if !errors.Is(err, engine.ErrStoreUnavailable) {
		t.Errorf("ClaimOnce() = %v, want ErrStoreUnavailable", err)
	}
}

func TestClaimOrGetLifecycle(t *testing.T) {
	gate := NewGate(stores.NewMemoryStore(), nil)
	ctx := context.Background()
	payload := map[string]any{"email": "a@b.com"}

	key, cached, admitted, err := gate.ClaimOrGet(ctx, "lead.intake", payload, "", time.Minute)
	if err != nil {
		t.Fatalf("ClaimOrGet() error = %v", err)
	}
	if !admitted || cached != nil {
		t.Fatalf("first caller: admitted = %v, cached = %v", admitted, cached)
	}

	// Second caller while the first is still in flight: not admitted, no
	// cached response yet.
	_, cached, admitted, err = gate.ClaimOrGet(ctx, "lead.intake", payload, "", time.Minute)
	if err != nil {
		t.Fatalf("in-flight ClaimOrGet() error = %v", err)
	}
	if admitted || cached != nil {
		t.Fatalf("in-flight caller: admitted = %v, cached = %v", admitted, cached)
	}

	if err := gate.StoreResult(ctx, key, map[string]any{"run_id": "r-1", "status": "succeeded"}, time.Minute); err != nil {
		t.Fatalf("StoreResult() error = %v", err)
	}

	_, cached, admitted, err = gate.ClaimOrGet(ctx, "lead.intake", payload, "", time.Minute)
	if err != nil {
		t.Fatalf("replay ClaimOrGet() error = %v", err)
	}
	if admitted {
		t.Error("replay caller was admitted")
	}

	var stored map[string]any
	if err := json.Unmarshal(cached, &stored); err != nil {
		t.Fatalf("cached response is not JSON: %v", err)
	}
	if stored["run_id"] != "r-1" || stored["status"] != "succeeded" {
		t.Errorf("cached = %v", stored)
	}
}

func TestClaimOrGetExpiredClaimReadmits(t *testing.T) {
	gate := NewGate(stores.NewMemoryStore(), nil)
	ctx := context.Background()

	_, _, admitted, err := gate.ClaimOrGet(ctx, "lead.intake", nil, "k", time.Millisecond)
	if err != nil || !admitted {
		t.Fatalf("first ClaimOrGet() = (%v, %v)", admitted, err)
	}

	time.Sleep(5 * time.Millisecond)

	_, _, admitted, err = gate.ClaimOrGet(ctx, "lead.intake", nil, "k", time.Minute)
	if err != nil {
		t.Fatalf("ClaimOrGet() after expiry error = %v", err)
	}
	if !admitted {
		t.Error("expired claim must be re-admittable")
	}
}

func TestReleaseFreesClaim(t *testing.T) {
	gate := NewGate(stores.NewMemoryStore(), nil)
	ctx := context.Background()

	key, _, admitted, err := gate.ClaimOrGet(ctx, "lead.intake", map[string]any{"n": 1}, "", time.Minute)
	if err != nil || !admitted {
		t.Fatalf("ClaimOrGet() = (%v, %v), want admitted", admitted, err)
	}

	if err := gate.Release(ctx, key); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	_, cached, admitted, err := gate.ClaimOrGet(ctx, "lead.intake", map[string]any{"n": 1}, "", time.Minute)
	if err != nil {
		t.Fatalf("ClaimOrGet() after release error = %v", err)
	}
	if !admitted || cached != nil {
		t.Errorf("ClaimOrGet() after release = (admitted=%v, cached=%s), want a fresh admission", admitted, cached)
	}
}

func TestDegradedGateAdmits(t *testing.T) {
	gate := NewDegradedGate(nil)

	_, _, admitted, err := gate.ClaimOrGet(context.Background(), "lead.intake", nil, "k", time.Minute)
	if err != nil || !admitted {
		t.Errorf("degraded gate ClaimOrGet() = (%v, %v), want admitted", admitted, err)
	}
}
