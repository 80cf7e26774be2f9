package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

func nextSpanID() uint64 { return spanCounter.Add(1) }

// Span is one open begin/end pair. A zero Span (from a disabled tracer or a
// filtered scope) is valid and does nothing.
type Span struct {
	c       carrier
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// BeginCtx opens a span under the tracer and span carried by ctx and returns
// a context in which the new span is the parent of nested ones.
func BeginCtx(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	c := fromCtx(ctx)
	t := c.tracer
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{}, ctx
	}
	sp := &Span{
		c:       c,
		id:      nextSpanID(),
		parent:  c.span,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(sp.event(KindSpanBegin, sp.started, ""))
	c.span = sp.id
	return sp, c.into(ctx)
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	return &Event{
		Time:     at,
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Run:      s.c.run,
		Shard:    s.c.shard,
		Name:     s.name,
		Detail:   detail,
	}
}

// End emits the end event with the elapsed time and returns it.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	now := time.Now()
	dur := now.Sub(s.started)
	ev := s.event(KindSpanEnd, now, detail)
	ev.Extra = s.extra
	if ev.Extra == nil {
		ev.Extra = make(map[string]string, 1)
	}
	ev.Extra["elapsed"] = dur.Round(time.Microsecond).String()
	s.c.tracer.Emit(ev)
	return dur
}

// WithExtra adds a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID, 0 for a disabled span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point emits an instant event under the span carried by ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	c := fromCtx(ctx)
	if !c.tracer.Enabled() || !c.tracer.Level().ShouldEmit(scope) {
		return
	}
	c.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: c.span,
		Run:      c.run,
		Shard:    c.shard,
		Name:     name,
		Detail:   detail,
	})
}
