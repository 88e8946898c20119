package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestSQLiteStoreSetNX(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "k", []byte("first"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX() = (%v, %v), want claimed", ok, err)
	}

	ok, err = store.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX() = (%v, %v), want rejected", ok, err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "first" {
		t.Errorf("Get() = (%s, %v), want the original value", got, err)
	}
}

func TestSQLiteStoreSetNXReclaimsExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if ok, err := store.SetNX(ctx, "k", []byte("v1"), 50*time.Millisecond); err != nil || !ok {
		t.Fatalf("SetNX() = (%v, %v)", ok, err)
	}

	time.Sleep(100 * time.Millisecond)

	ok, err := store.SetNX(ctx, "k", []byte("v2"), time.Minute)
	if err != nil {
		t.Fatalf("SetNX() after expiry error = %v", err)
	}
	if !ok {
		t.Fatal("SetNX() after expiry rejected, expired claims must be reclaimable")
	}

	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Errorf("Get() = (%s, %v)", got, err)
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) = %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteStoreGetExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(expired) = %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteStoreSetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "k", []byte("b"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil || string(got) != "b" {
		t.Errorf("Get() = (%s, %v), want unconditional overwrite", got, err)
	}
}

func TestSQLiteStoreRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, member := range []string{"run-a", "run-b", "run-c"} {
		if err := store.UpsertRecency(ctx, "runs", member, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("UpsertRecency() error = %v", err)
		}
	}

	members, err := store.RecentMembers(ctx, "runs", 10)
	if err != nil {
		t.Fatalf("RecentMembers() error = %v", err)
	}
	want := []string{"run-c", "run-b", "run-a"}
	if len(members) != len(want) {
		t.Fatalf("members = %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("members = %v, want %v", members, want)
		}
	}

	// Upserting an existing member advances it.
	if err := store.UpsertRecency(ctx, "runs", "run-a", base.Add(time.Hour)); err != nil {
		t.Fatalf("UpsertRecency() error = %v", err)
	}
	members, _ = store.RecentMembers(ctx, "runs", 2)
	if len(members) != 2 || members[0] != "run-a" {
		t.Errorf("members = %v, want run-a first with limit applied", members)
	}
}

func TestSQLiteStorePurgeExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "stale", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "fresh", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("Get(fresh) after purge error = %v", err)
	}
}

func TestSQLiteStoreHealthCheck(t *testing.T) {
	store := newTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
