package trace

import "errors"

// fanout sends every event to a stream and a ring. The sequence number is
// assigned once so both see the same value.
type fanout struct {
	stream *StreamTracer
	ring   *RingTracer
	level  Level
}

func (t *fanout) Emit(ev *Event) {
	if ev.Seq == 0 {
		ev.Seq = NextSeq()
	}
	t.stream.Emit(ev)
	t.ring.Emit(ev)
}

func (t *fanout) Flush() error { return t.stream.Flush() }

func (t *fanout) Close() error {
	return errors.Join(t.stream.Close(), t.ring.Close())
}

func (t *fanout) Level() Level  { return t.level }
func (t *fanout) Enabled() bool { return t.level > LevelOff }
