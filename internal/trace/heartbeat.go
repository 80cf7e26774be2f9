package trace

import (
	"maps"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// Probe reports live counters for heartbeat events, e.g. shards in flight.
type Probe func() map[string]string

// Heartbeat emits a batch-scope event at a fixed interval. Heartbeats with
// no shard end events between them mean a worker is stuck.
type Heartbeat struct {
	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// StartHeartbeat starts emitting to t every interval. probe may be nil.
// It returns nil when t is disabled or interval is not positive.
func StartHeartbeat(t Tracer, interval time.Duration, probe Probe) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{})}
	h.done.Add(1)
	go func() {
		defer h.done.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for beat := 1; ; beat++ {
			select {
			case <-h.stop:
				return
			case now := <-ticker.C:
				extra := map[string]string{"goroutines": strconv.Itoa(runtime.NumGoroutine())}
				if probe != nil {
					maps.Copy(extra, probe())
				}
				t.Emit(&Event{
					Time:   now,
					Kind:   KindHeartbeat,
					Scope:  ScopeBatch,
					Shard:  -1,
					Name:   "heartbeat",
					Detail: "#" + strconv.Itoa(beat),
					Extra:  extra,
				})
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for its goroutine. Safe on nil and
// safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.done.Wait()
}
