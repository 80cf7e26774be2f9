package diag

import "sync"

type dedupKey struct {
	code   Code
	sev    Severity
	path   string
	offset uint32
	msg    string
}

// DedupReporter wraps another Reporter and suppresses duplicate diagnostics
// with the same code, severity, location and message. Several translation
// units reaching one header produce exactly such duplicates.
type DedupReporter struct {
	next Reporter

	mu   sync.Mutex
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to the provided reporter.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(d Diagnostic) {
	if r == nil {
		return
	}
	key := dedupKey{
		code:   d.Code,
		sev:    d.Severity,
		path:   d.Path,
		offset: d.Offset,
		msg:    d.Message,
	}
	r.mu.Lock()
	if _, ok := r.seen[key]; ok {
		r.mu.Unlock()
		return
	}
	r.seen[key] = struct{}{}
	r.mu.Unlock()
	if r.next != nil {
		r.next.Report(d)
	}
}
