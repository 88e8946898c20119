package runstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/stores"
)

type failingKV struct {
	stores.KV
}

func (failingKV) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk gone")
}

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk gone")
}

func (failingKV) UpsertRecency(context.Context, string, string, time.Time) error {
	return errors.New("disk gone")
}

func TestSetStatusGetStatusRoundtrip(t *testing.T) {
	store := NewStore(stores.NewMemoryStore(), nil, time.Hour)
	ctx := context.Background()

	detail := map[string]any{"executed": []any{"s1", "s2"}, "error": "boom"}
	if err := store.SetStatus(ctx, "run-1", engine.StatusFailed, detail); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	status, got, err := store.GetStatus(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status != engine.StatusFailed {
		t.Errorf("status = %v, want failed", status)
	}
	if got["error"] != "boom" {
		t.Errorf("detail = %v", got)
	}
}

func TestGetStatusUnknownRunDefaultsToQueued(t *testing.T) {
	store := NewStore(stores.NewMemoryStore(), nil, time.Hour)

	status, detail, err := store.GetStatus(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("GetStatus() error = %v, unknown runs must not error", err)
	}
	if status != engine.StatusQueued {
		t.Errorf("status = %v, want queued", status)
	}
	if detail == nil || len(detail) != 0 {
		t.Errorf("detail = %v, want empty map", detail)
	}
}

func TestSetStatusRejectsInvalidStatus(t *testing.T) {
	store := NewStore(stores.NewMemoryStore(), nil, time.Hour)

	if err := store.SetStatus(context.Background(), "run-1", engine.RunStatus("paused"), nil); err == nil {
		t.Error("SetStatus(invalid) = nil, want validation error")
	}
}

func TestSetStatusSurfacesStoreFailure(t *testing.T) {
	store := NewStore(failingKV{}, nil, time.Hour)

	err := store.SetStatus(context.Background(), "run-1", engine.StatusRunning, nil)
	if !errors.Is(err, engine.ErrStoreUnavailable) {
		t.Errorf("SetStatus() = %v, want ErrStoreUnavailable", err)
	}
}

func TestGetStatusSurfacesStoreFailure(t *testing.T) {
	store := NewStore(failingKV{}, nil, time.Hour)

	_, _, err := store.GetStatus(context.Background(), "run-1")
	if !errors.Is(err, engine.ErrStoreUnavailable) {
		t.Errorf("GetStatus() = %v, want ErrStoreUnavailable", err)
	}
}

func TestRecordMetaIsBestEffort(t *testing.T) {
	// Must not panic or surface errors even with a dead store.
	store := NewStore(failingKV{}, nil, time.Hour)
	store.RecordMeta(context.Background(), "run-1", "lead.intake", map[string]any{"email": "a@b.com"})
}

func TestListRecentOrderingAndLimit(t *testing.T) {
	store := NewStore(stores.NewMemoryStore(), nil, time.Hour)
	ctx := context.Background()

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	for _, runID := range []string{"run-a", "run-b", "run-c"} {
		store.RecordMeta(ctx, runID, "lead.intake", nil)
		if err := store.SetStatus(ctx, runID, engine.StatusQueued, nil); err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}
		clock = clock.Add(time.Minute)
	}

	// run-a finishes last, bumping it to the front.
	if err := store.SetStatus(ctx, "run-a", engine.StatusSucceeded, map[string]any{"executed": []any{"s1"}}); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}

	records, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0].RunID != "run-a" || records[0].Status != engine.StatusSucceeded {
		t.Errorf("records[0] = %+v, want the most recently updated run", records[0])
	}
	if records[0].Meta == nil || records[0].Meta.Intent != "lead.intake" {
		t.Errorf("records[0].Meta = %+v, want joined metadata", records[0].Meta)
	}

	limited, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited records = %d, want 2", len(limited))
	}
}
