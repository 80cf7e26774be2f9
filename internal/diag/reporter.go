package diag

import (
	"sync"

	"tlsify/internal/source"
)

// Reporter — минимальный контракт получения диагностик от компонентов.
// Реализации: BagReporter (кладёт в Bag), NopReporter, MultiReporter (fan-out),
// DedupReporter и LogReporter. Все реализации безопасны для конкурентного вызова.
type Reporter interface {
	Report(d Diagnostic)
}

// ReportBuilder accumulates diagnostic details before emitting to Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// NewReportBuilder constructs a builder bound to Reporter.
func NewReportBuilder(r Reporter, sev Severity, code Code, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag:     New(sev, code, msg),
	}
}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevError, code, msg)
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, msg)
}

// ReportInfo is a shortcut for SevInfo diagnostics.
func ReportInfo(r Reporter, code Code, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevInfo, code, msg)
}

// At sets the file and byte offset the diagnostic refers to.
func (b *ReportBuilder) At(path string, offset uint32) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.At(path, offset)
	return b
}

// Pos records the resolved line and column.
func (b *ReportBuilder) Pos(pos source.LineCol) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithPos(pos)
	return b
}

// Path sets only the file.
func (b *ReportBuilder) Path(path string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Path = path
	return b
}

func (b *ReportBuilder) Str(key, value string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.With(key, value)
	return b
}

// Err attaches err under the "error" key; nil errors are ignored.
func (b *ReportBuilder) Err(err error) *ReportBuilder {
	if b == nil || err == nil {
		return b
	}
	b.diag = b.diag.With("error", err.Error())
	return b
}

// Emit sends diagnostic to underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		b.reporter.Report(b.diag)
	}
	b.emitted = true
}

// Diagnostic returns accumulated diagnostic without emitting.
func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// BagReporter — адаптер, который пишет в *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

// MultiReporter fans a diagnostic out to every wrapped reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(d Diagnostic) {
	for _, r := range m {
		if r != nil {
			r.Report(d)
		}
	}
}

// CountingReporter forwards diagnostics and counts them per severity.
type CountingReporter struct {
	Next Reporter

	mu     sync.Mutex
	counts [SevError + 1]int
}

func (r *CountingReporter) Report(d Diagnostic) {
	r.mu.Lock()
	if d.Severity <= SevError {
		r.counts[d.Severity]++
	}
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Report(d)
	}
}

// Count returns how many diagnostics of sev were seen.
func (r *CountingReporter) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sev > SevError {
		return 0
	}
	return r.counts[sev]
}
