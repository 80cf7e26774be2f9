package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory. It is dumped when a
// batch fails so the shard and file events that led up to it are visible.
type RingTracer struct {
	mu     sync.Mutex
	buf    []Event
	stored uint64 // events ever stored; buf[stored%len] is the next slot
	level  Level
}

// NewRingTracer returns a ring holding the last capacity events.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) && ev.Kind != KindHeartbeat {
		return
	}
	if ev.Seq == 0 {
		ev.Seq = NextSeq()
	}
	t.mu.Lock()
	t.buf[t.stored%uint64(len(t.buf))] = *ev
	t.stored++
	t.mu.Unlock()
}

// Snapshot returns every kept event, oldest first.
func (t *RingTracer) Snapshot() []Event {
	return t.Tail(len(t.buf))
}

// Tail returns up to n of the newest events, oldest first.
func (t *RingTracer) Tail(n int) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := uint64(len(t.buf))
	count := min(t.stored, size)
	if n >= 0 && uint64(n) < count {
		count = uint64(n)
	}
	out := make([]Event, 0, count)
	for i := t.stored - count; i < t.stored; i++ {
		out = append(out, t.buf[i%size])
	}
	return out
}

// Dropped returns how many events were overwritten.
func (t *RingTracer) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stored <= uint64(len(t.buf)) {
		return 0
	}
	return t.stored - uint64(len(t.buf))
}

// Dump writes the kept events to w, keeping only those for which keep
// returns true. A nil keep writes everything.
func (t *RingTracer) Dump(w io.Writer, format Format, keep func(*Event) bool) error {
	events := t.Snapshot()
	for i := range events {
		if keep != nil && !keep(&events[i]) {
			continue
		}
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
