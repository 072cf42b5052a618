package ringbuffer

import (
	"sync"
	"testing"

	"github.com/flowmesh/telemetry/pkg/model"
)

func logEvent(ts int64) model.Event {
	return &model.LogEvent{Timestamp: ts, Source: "t", Level: model.LogLevelInfo, Message: "m", Fields: map[string]string{}, Tags: []string{}}
}

func TestPushFullAfterCapacity(t *testing.T) {
	b := New(2)
	if err := b.Push(logEvent(1)); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(logEvent(2)); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := b.Push(logEvent(3)); err != ErrFull {
		t.Fatalf("push 3: got %v, want ErrFull", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestDrainDecreasesLenByMinKLen(t *testing.T) {
	b := New(10)
	for i := 0; i < 5; i++ {
		if err := b.Push(logEvent(int64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	before := b.Len()
	drained := b.Drain(3)
	if len(drained) != 3 {
		t.Fatalf("drained %d events, want 3", len(drained))
	}
	if b.Len() != before-3 {
		t.Fatalf("Len() = %d, want %d", b.Len(), before-3)
	}

	// Draining more than available stops early.
	rest := b.Drain(100)
	if len(rest) != 2 {
		t.Fatalf("drained %d events, want 2", len(rest))
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestFIFOOrderPerProducer(t *testing.T) {
	b := New(100)
	for i := 0; i < 10; i++ {
		if err := b.Push(logEvent(int64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	for i := 0; i < 10; i++ {
		e, err := b.Pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if e.EventTimestamp() != int64(i) {
			t.Fatalf("pop %d: timestamp = %d, want %d", i, e.EventTimestamp(), i)
		}
	}
}

func TestConcurrentPushSingleConsumerDrain(t *testing.T) {
	const capacity = 1000
	const producers = 8
	const perProducer = 500

	b := New(capacity)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = b.Push(logEvent(int64(i))) // may drop under contention; that's expected
			}
		}()
	}
	wg.Wait()

	// producers*perProducer (4000) > capacity (1000), so the buffer should
	// have saturated and a full drain yields exactly Capacity() events.
	drained := b.Drain(capacity)
	if len(drained) != capacity {
		t.Fatalf("drained %d events, want exactly capacity %d", len(drained), capacity)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after full drain = %d, want 0", b.Len())
	}
}
