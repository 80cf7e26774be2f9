package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase records the duration and metadata of one pipeline phase.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
}

// Timer tracks the execution time of the rewrite phases (discover, analyze,
// aggregate, apply) plus a few counters. Safe for concurrent use.
type Timer struct {
	mu       sync.Mutex
	phases   []Phase
	counters []counter
}

type counter struct {
	name  string
	value int
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 8)} }

// Begin starts a new phase and returns its index.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: time.Now()})
	return len(t.phases) - 1
}

// End finishes a phase by its index.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) {
		return
	}
	p := &t.phases[idx]
	p.Dur = time.Since(p.Start)
	p.Note = note
}

// Track begins a phase and returns the function that ends it.
func (t *Timer) Track(name string) func(note string) {
	idx := t.Begin(name)
	return func(note string) { t.End(idx, note) }
}

// Add increments a named counter (files, records, edits, ...).
func (t *Timer) Add(name string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.counters {
		if t.counters[i].name == name {
			t.counters[i].value += delta
			return
		}
	}
	t.counters = append(t.counters, counter{name: name, value: delta})
}

// Summary returns a human-readable string summarizing all tracked phases.
func (t *Timer) Summary() string {
	report := t.Report()
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&b, "  %-12s %9.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-12s %9.2f ms\n", "total", report.TotalMS)
	for _, c := range report.Counters {
		fmt.Fprintf(&b, "  %-12s %9d\n", c.Name, c.Value)
	}
	return b.String()
}

// PhaseReport представляет сжатую информацию о фазе таймера для сериализации.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// CounterReport is one named counter.
type CounterReport struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Report описывает агрегированные данные таймера.
type Report struct {
	TotalMS  float64         `json:"total_ms"`
	Phases   []PhaseReport   `json:"phases"`
	Counters []CounterReport `json:"counters,omitempty"`
}

// Report формирует срез фаз и общую длительность в миллисекундах.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	report := Report{
		Phases: make([]PhaseReport, len(t.phases)),
	}
	var total time.Duration
	for i, phase := range t.phases {
		total += phase.Dur
		report.Phases[i] = PhaseReport{
			Name:       phase.Name,
			DurationMS: durationToMillis(phase.Dur),
			Note:       phase.Note,
		}
	}
	report.TotalMS = durationToMillis(total)
	for _, c := range t.counters {
		report.Counters = append(report.Counters, CounterReport{Name: c.name, Value: c.value})
	}
	return report
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
