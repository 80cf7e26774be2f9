package diag

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"tlsify/internal/source"
)

func TestReportBuilderEmitsOnce(t *testing.T) {
	bag := NewBag(0)
	b := ReportError(BagReporter{Bag: bag}, ExistingTLS, "already thread-local").
		At("src/a.c", 12).
		Str("name", "counter")
	b.Emit()
	b.Emit()

	if bag.Len() != 1 {
		t.Fatalf("expected one diagnostic, got %d", bag.Len())
	}
	d := bag.Items()[0]
	if d.Severity != SevError || d.Code != ExistingTLS {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	if v, ok := d.Field("name"); !ok || v != "counter" {
		t.Fatalf("field name = %q, %v", v, ok)
	}
	if d.Location() != "src/a.c@12" {
		t.Fatalf("Location() = %q", d.Location())
	}
}

func TestBagLimitAndMerge(t *testing.T) {
	a := NewBag(1)
	if !a.Add(New(SevInfo, Progress, "one")) {
		t.Fatalf("first add rejected")
	}
	if a.Add(New(SevInfo, Progress, "two")) {
		t.Fatalf("add past limit accepted")
	}
	b := NewBag(0)
	b.Add(New(SevError, FileIO, "x"))
	b.Add(New(SevError, FileIO, "y"))
	a.Merge(b)
	if a.Len() != 3 || a.Add(New(SevInfo, Progress, "three")) {
		t.Fatalf("merge: len=%d, limit not raised to the merged size", a.Len())
	}
	if !a.HasErrors() {
		t.Fatalf("expected errors after merge")
	}
}

func TestBagSortAndDedup(t *testing.T) {
	bag := NewBag(0)
	bag.Add(New(SevWarning, ParseFailure, "w").At("b.c", 0))
	bag.Add(New(SevInfo, FileRewritten, "ok").At("a.c", 5))
	bag.Add(New(SevError, ExistingTLS, "e").At("a.c", 5))
	bag.Add(New(SevError, ExistingTLS, "e").At("a.c", 5))
	bag.Dedup()
	bag.Sort()

	got := bag.Codes()
	want := []Code{ExistingTLS, FileRewritten, ParseFailure}
	if len(got) != len(want) {
		t.Fatalf("codes = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("codes[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDedupReporterConcurrent(t *testing.T) {
	bag := NewBag(0)
	r := NewDedupReporter(BagReporter{Bag: bag})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Report(New(SevError, ExistingTLS, "dup").At("shared.h", 40))
		}()
	}
	wg.Wait()
	r.Report(New(SevError, ExistingTLS, "dup").At("shared.h", 41))

	if bag.Len() != 2 {
		t.Fatalf("expected 2 unique diagnostics, got %d", bag.Len())
	}
}

func TestMultiAndCountingReporter(t *testing.T) {
	first, second := NewBag(0), NewBag(0)
	counter := &CountingReporter{Next: MultiReporter{BagReporter{Bag: first}, nil, BagReporter{Bag: second}}}
	counter.Report(New(SevWarning, ParseFailure, "w"))
	counter.Report(New(SevError, ConflictingEdits, "c"))
	counter.Report(New(SevError, ConflictingEdits, "c"))

	if first.Len() != 3 || second.Len() != 3 {
		t.Fatalf("fan-out lengths %d %d", first.Len(), second.Len())
	}
	if counter.Count(SevError) != 2 || counter.Count(SevWarning) != 1 || counter.Count(SevInfo) != 0 {
		t.Fatalf("unexpected counts")
	}
}

func TestLogReporterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Level: "info", Format: "json", Writer: &buf})
	r := NewLogReporter(logger, Field{Key: "run", Value: "r1"})

	r.Report(New(SevError, ConflictingEdits, "conflicting proposals").
		At("src/a.h", 10).
		With("text", "__thread "))
	r.Report(New(SevInfo, Progress, "hidden at info level"))

	out := buf.String()
	for _, want := range []string{`"level":"error"`, `"code":"RW4001"`, `"loc":"src/a.h@10"`, `"text":"__thread "`, `"run":"r1"`, "conflicting proposals"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden at info level") {
		t.Fatalf("progress must be logged at debug level:\n%s", out)
	}
}

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		New(SevWarning, ParseFailure, "syntax\nerror").At("b.c", 0),
		New(SevError, ConflictingEdits, "two proposals").At("a.h", 3).WithPos(source.LineCol{Line: 2, Col: 1}),
		New(SevInfo, PoolInfo, "started"),
	}
	want := "info POOL3000 - started\n" +
		"error RW4001 a.h:2:1 two proposals\n" +
		"warning FE1002 b.c@0 syntax error"
	if got := FormatShort(diags); got != want {
		t.Fatalf("FormatShort:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestParseSeverity(t *testing.T) {
	if ParseSeverity("WARN") != SevWarning || ParseSeverity("error") != SevError || ParseSeverity("debug") != SevInfo {
		t.Fatalf("unexpected severity mapping")
	}
}
