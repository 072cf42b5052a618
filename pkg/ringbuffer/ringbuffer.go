// Package ringbuffer implements a fixed-capacity, lossy,
// multi-producer/multi-consumer event queue.
//
// # Design
//
// Capacity is fixed at construction. Slots are claimed by atomically
// advancing head/tail cursors (CAS loop), mirroring the slot-array
// semantics of a crossbeam-style ArrayQueue: push never blocks and fails
// immediately with ErrFull once all slots between head and tail are
// occupied; pop never blocks and fails immediately with ErrEmpty when
// there is nothing to take. Concurrent pushes from many producers and
// concurrent pops/drains from one consumer are safe without an external
// lock.
package ringbuffer

import (
	"errors"
	"sync/atomic"

	"github.com/flowmesh/telemetry/pkg/model"
)

// ErrFull is returned by Push when the buffer is at capacity.
var ErrFull = errors.New("ringbuffer: full")

// ErrEmpty is returned by Pop when the buffer has nothing to dequeue.
var ErrEmpty = errors.New("ringbuffer: empty")

type slot struct {
	// sequence coordinates readers/writers on this slot, following the
	// standard bounded-MPMC-queue protocol: a slot is writable when its
	// sequence equals the write cursor, and readable when its sequence
	// equals read_cursor+1.
	sequence atomic.Uint64
	value    model.Event
}

// Buffer is a fixed-capacity lossy MPMC queue of Events.
type Buffer struct {
	size  uint64
	slots []slot

	writeCursor atomic.Uint64
	readCursor  atomic.Uint64

	dropped atomic.Uint64
}

// New creates a Buffer with exactly the given capacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	size := uint64(capacity)

	b := &Buffer{
		size:  size,
		slots: make([]slot, size),
	}
	for i := range b.slots {
		b.slots[i].sequence.Store(uint64(i))
	}
	return b
}

// Push enqueues an event. It never blocks: if the buffer is at capacity it
// returns ErrFull immediately and the caller is expected to drop the event
// and emit a warning — the buffer is explicitly lossy under overload.
func (b *Buffer) Push(e model.Event) error {
	for {
		pos := b.writeCursor.Load()
		s := &b.slots[pos%b.size]
		seq := s.sequence.Load()

		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if b.writeCursor.CompareAndSwap(pos, pos+1) {
				s.value = e
				s.sequence.Store(pos + 1)
				return nil
			}
			// Lost the race with another producer; retry.
		case diff < 0:
			b.dropped.Add(1)
			return ErrFull
		default:
			// Another producer already filled this slot and advanced the
			// write cursor, so pos is stale; reload and retry.
		}
	}
}

// Pop dequeues the oldest event. It never blocks: if empty it returns
// ErrEmpty immediately.
func (b *Buffer) Pop() (model.Event, error) {
	for {
		pos := b.readCursor.Load()
		s := &b.slots[pos%b.size]
		seq := s.sequence.Load()

		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if b.readCursor.CompareAndSwap(pos, pos+1) {
				v := s.value
				s.value = nil
				s.sequence.Store(pos + b.size)
				return v, nil
			}
			// Lost the race with another consumer; retry.
		case diff < 0:
			return nil, ErrEmpty
		default:
			// Another consumer already took this slot and advanced the
			// read cursor, so pos is stale; reload and retry.
		}
	}
}

// Drain pops up to max events, stopping early on empty, and returns them in
// FIFO order.
func (b *Buffer) Drain(max int) []model.Event {
	if max <= 0 {
		return nil
	}
	out := make([]model.Event, 0, max)
	for i := 0; i < max; i++ {
		e, err := b.Pop()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

// Len reports the number of events currently enqueued. It is a snapshot
// under concurrent use and may be stale by the time the caller observes it.
func (b *Buffer) Len() int {
	w := b.writeCursor.Load()
	r := b.readCursor.Load()
	if w < r {
		return 0
	}
	return int(w - r)
}

// IsEmpty reports whether Len() == 0.
func (b *Buffer) IsEmpty() bool { return b.Len() == 0 }

// IsFull reports whether Len() == Capacity().
func (b *Buffer) IsFull() bool { return b.Len() >= b.Capacity() }

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int { return int(b.size) }

// Dropped returns the cumulative count of events rejected by Push because
// the buffer was full.
func (b *Buffer) Dropped() uint64 { return b.dropped.Load() }
