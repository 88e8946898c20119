package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Workers:       2,
		Buffer:        16,
		MaxDeliveries: 3,
		RequeueDelay:  time.Millisecond,
	}
}

func TestQueueDeliversToHandler(t *testing.T) {
	q := New(context.Background(), testConfig(), nil)
	defer q.Close()

	done := make(chan string, 1)
	q.Register("lead.process", func(_ context.Context, args json.RawMessage) error {
		var payload map[string]string
		if err := json.Unmarshal(args, &payload); err != nil {
			t.Errorf("handler args = %s: %v", args, err)
		}
		done <- payload["run_id"]
		return nil
	})

	if err := q.Enqueue(context.Background(), "lead.process", map[string]string{"run_id": "r-1"}, "r-1"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case got := <-done:
		if got != "r-1" {
			t.Errorf("handler received %s, want r-1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestQueueRedeliversUntilSuccess(t *testing.T) {
	q := New(context.Background(), testConfig(), nil)
	defer q.Close()

	var calls atomic.Int32
	done := make(chan struct{})
	q.Register("flaky", func(_ context.Context, _ json.RawMessage) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	if err := q.Enqueue(context.Background(), "flaky", nil, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never succeeded")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestQueueDropsAtDeliveryCap(t *testing.T) {
	q := New(context.Background(), testConfig(), nil)
	defer q.Close()

	var calls atomic.Int32
	q.Register("doomed", func(_ context.Context, _ json.RawMessage) error {
		calls.Add(1)
		return errors.New("permanent")
	})

	if err := q.Enqueue(context.Background(), "doomed", nil, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Let the requeue cycle drain.
	deadline := time.After(time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want 3 before giving up", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 3 {
		t.Errorf("calls = %d, delivery cap must stop redelivery", calls.Load())
	}
}

func TestQueueUnknownTaskDropped(t *testing.T) {
	q := New(context.Background(), testConfig(), nil)
	defer q.Close()

	if err := q.Enqueue(context.Background(), "nobody.home", nil, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	// Nothing to assert beyond "does not wedge the pool": a follow-up task
	// must still be delivered.
	done := make(chan struct{})
	q.Register("alive", func(_ context.Context, _ json.RawMessage) error {
		close(done)
		return nil
	})
	if err := q.Enqueue(context.Background(), "alive", nil, ""); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool wedged after unknown task")
	}
}

func TestQueueCloseDrainsAndRejects(t *testing.T) {
	q := New(context.Background(), testConfig(), nil)

	var mu sync.Mutex
	var handled []string
	q.Register("work", func(_ context.Context, args json.RawMessage) error {
		mu.Lock()
		handled = append(handled, string(args))
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), "work", i, ""); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	q.Close()

	mu.Lock()
	n := len(handled)
	mu.Unlock()
	if n != 5 {
		t.Errorf("handled = %d, want all buffered tasks drained on Close", n)
	}

	if err := q.Enqueue(context.Background(), "work", 6, ""); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() after Close = %v, want ErrQueueClosed", err)
	}

	// Closing twice is a no-op.
	q.Close()
}
