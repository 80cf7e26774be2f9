package observ

import (
	"strings"
	"sync"
	"testing"
)

func TestTimerTrackAndCounters(t *testing.T) {
	tm := NewTimer()
	end := tm.Track("analyze")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add("records", 2)
		}()
	}
	wg.Wait()
	end("8 shards")
	tm.End(tm.Begin("apply"), "")
	tm.End(42, "ignored")

	rep := tm.Report()
	if len(rep.Phases) != 2 || rep.Phases[0].Note != "8 shards" {
		t.Fatalf("unexpected phases %+v", rep.Phases)
	}
	if len(rep.Counters) != 1 || rep.Counters[0].Value != 16 {
		t.Fatalf("unexpected counters %+v", rep.Counters)
	}
	sum := tm.Summary()
	for _, want := range []string{"analyze", "// 8 shards", "apply", "total", "records"} {
		if !strings.Contains(sum, want) {
			t.Fatalf("summary missing %q:\n%s", want, sum)
		}
	}
}
