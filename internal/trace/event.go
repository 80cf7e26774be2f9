package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint     // instant event
	KindHeartbeat // periodic liveness signal
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	// ScopeBatch is one whole rewrite run.
	ScopeBatch Scope = iota + 1
	// ScopePhase is analysis, aggregation or apply.
	ScopePhase
	// ScopeShard is one worker and its slice of files.
	ScopeShard
	ScopeFile // one written file
)

func (s Scope) String() string {
	switch s {
	case ScopeBatch:
		return "batch"
	case ScopePhase:
		return "phase"
	case ScopeShard:
		return "shard"
	case ScopeFile:
		return "file"
	default:
		return "unknown"
	}
}

// Event is one trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // global, monotonic
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for a root span
	Run      string // batch run ID, "" when untagged
	Shard    int    // -1 outside a shard
	Name     string // e.g. "analyze", "shard 3", "src/a.c"
	Detail   string
	Extra    map[string]string
}

// InShard reports whether the event was emitted on behalf of a shard.
func (ev *Event) InShard() bool { return ev.Shard >= 0 }
