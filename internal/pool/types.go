package pool

import "time"

// Status captures the state of one shard.
type Status string

const (
	// StatusQueued indicates the shard is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusAnalyzing indicates a worker is processing the shard.
	StatusAnalyzing Status = "analyzing"
	// StatusDone indicates the worker returned a valid response.
	StatusDone Status = "done"
	// StatusError indicates the worker failed.
	StatusError Status = "error"
)

// Event reports progress for one shard.
type Event struct {
	Shard   int
	Files   int
	Status  Status
	Err     error
	Elapsed time.Duration
	Records int
}

// ProgressSink consumes progress events. OnEvent may be called from several
// goroutines at once.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Tee returns a sink that forwards every event to each non-nil sink in order.
func Tee(sinks ...ProgressSink) ProgressSink {
	return SinkFunc(func(evt Event) {
		for _, s := range sinks {
			if s != nil {
				s.OnEvent(evt)
			}
		}
	})
}
