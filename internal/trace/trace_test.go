package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLevelGatesScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeBatch, false},
		{LevelPhase, ScopePhase, true},
		{LevelPhase, ScopeShard, false},
		{LevelDetail, ScopeShard, true},
		{LevelDetail, ScopeFile, false},
		{LevelDebug, ScopeFile, true},
		{LevelError, ScopeShard, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestStreamTracerNestedSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	ctx := WithTracer(context.Background(), tr)

	batch, ctx := BeginCtx(ctx, ScopeBatch, "rewrite")
	shard, shardCtx := BeginCtx(WithShard(ctx, 0), ScopeShard, "shard 0")
	file, _ := BeginCtx(shardCtx, ScopeFile, "a.c")
	file.End("")
	shard.WithExtra("records", "3").End("")
	batch.End("ok")

	out := buf.String()
	if strings.Contains(out, "a.c") {
		t.Fatalf("file scope must be filtered at detail level:\n%s", out)
	}
	for _, want := range []string{"→ rewrite", "→ shard 0", "← shard 0", "records=3", "← rewrite (ok)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if shard.parent != batch.ID() {
		t.Fatalf("shard parent = %d, want %d", shard.parent, batch.ID())
	}
	if CurrentSpan(shardCtx) != shard.ID() {
		t.Fatalf("context does not carry the shard span")
	}
}

func TestEventsCarryRunAndShard(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	ctx := WithRun(WithTracer(context.Background(), tr), "run-1")

	sp, ctx := BeginCtx(WithShard(ctx, 2), ScopeShard, "shard 2")
	Point(ctx, ScopeFile, "a.c", "parsed")
	sp.End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 events, got %d:\n%s", len(lines), buf.String())
	}
	for _, line := range lines {
		var ev struct {
			Run   string `json:"run"`
			Shard *int   `json:"shard"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if ev.Run != "run-1" || ev.Shard == nil || *ev.Shard != 2 {
			t.Fatalf("event not tagged: %s", line)
		}
	}

	// вне шарда поле shard опускается
	buf.Reset()
	Point(WithTracer(context.Background(), tr), ScopeBatch, "x", "")
	if strings.Contains(buf.String(), `"shard"`) {
		t.Fatalf("untagged event has a shard: %s", buf.String())
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i, name := range []string{"a", "b", "c", "d", "e"} {
		r.Emit(&Event{Time: time.Now(), Kind: KindPoint, Scope: ScopeFile, Shard: i % 2, Name: name})
	}
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot length %d", len(snap))
	}
	for i, want := range []string{"c", "d", "e"} {
		if snap[i].Name != want {
			t.Fatalf("snap[%d] = %q, want %q", i, snap[i].Name, want)
		}
	}
	if tail := r.Tail(2); len(tail) != 2 || tail[0].Name != "d" || tail[1].Name != "e" {
		t.Fatalf("Tail(2) = %+v", tail)
	}
	if r.Dropped() != 2 {
		t.Fatalf("Dropped = %d", r.Dropped())
	}

	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatNDJSON, nil); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 ndjson lines, got %d", lines)
	}

	buf.Reset()
	if err := r.Dump(&buf, FormatText, func(ev *Event) bool { return ev.Shard == 1 }); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if out := buf.String(); strings.Count(out, "\n") != 1 || !strings.Contains(out, "[1] d") {
		t.Fatalf("filtered dump:\n%s", out)
	}
}

func TestNewModes(t *testing.T) {
	tr, err := New(Config{Level: LevelError, Mode: ModeStream})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := Ring(tr); !ok {
		t.Fatalf("error level must keep a ring, got %T", tr)
	}

	var out bytes.Buffer
	both, err := New(Config{Level: LevelDebug, Mode: ModeBoth, Output: &out})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ring, ok := Ring(both)
	if !ok {
		t.Fatalf("both mode must expose its ring")
	}
	Point(WithTracer(context.Background(), both), ScopeBatch, "hello", "")
	if len(ring.Snapshot()) != 1 || !strings.Contains(out.String(), "hello") {
		t.Fatalf("both mode must feed stream and ring")
	}

	path := filepath.Join(t.TempDir(), "trace.ndjson")
	file, err := New(Config{Level: LevelPhase, Mode: ModeStream, OutputPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st, ok := file.(*StreamTracer); !ok || !st.owned || st.format != FormatNDJSON {
		t.Fatalf("file output: %#v", file)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := ParseMode("disk"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestDisabledTracerIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("expected disabled tracer")
	}
	sp, ctx := BeginCtx(WithTracer(context.Background(), tr), ScopeBatch, "x")
	if sp.ID() != 0 || CurrentSpan(ctx) != 0 {
		t.Fatalf("disabled tracer must not allocate spans")
	}
	if d := sp.End(""); d != 0 {
		t.Fatalf("End on nop span = %v", d)
	}
}

func TestHeartbeatUsesProbe(t *testing.T) {
	ring := NewRingTracer(64, LevelPhase)
	var calls atomic.Int32
	h := StartHeartbeat(ring, time.Millisecond, func() map[string]string {
		calls.Add(1)
		return map[string]string{"shards_running": "2"}
	})
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop()

	events := ring.Snapshot()
	if len(events) < 2 {
		t.Fatalf("expected heartbeats, got %d", len(events))
	}
	ev := events[0]
	if ev.Kind != KindHeartbeat || ev.Extra["shards_running"] != "2" || ev.Extra["goroutines"] == "" {
		t.Fatalf("heartbeat = %+v", ev)
	}
	if StartHeartbeat(Nop, time.Millisecond, nil) != nil {
		t.Fatalf("disabled tracer must not start a heartbeat")
	}
}
