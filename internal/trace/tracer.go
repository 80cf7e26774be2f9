package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Tracer receives trace events. Implementations must be goroutine-safe.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

// DefaultRingSize is the ring capacity used when none is configured.
const DefaultRingSize = 4096

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as they happen
	ModeRing                          // kept in memory for a dump on failure
	ModeBoth
)

func (m StorageMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	case ModeBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseMode converts a flag value to a StorageMode.
func ParseMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream":
		return ModeStream, nil
	case "ring":
		return ModeRing, nil
	case "both":
		return ModeBoth, nil
	}
	return 0, fmt.Errorf("invalid storage mode: %q (expected: stream|ring|both)", s)
}

// Config holds tracer configuration.
type Config struct {
	Level      Level
	Mode       StorageMode
	Format     Format        // FormatAuto picks by OutputPath extension
	Output     io.Writer     // stream destination; wins over OutputPath
	OutputPath string        // "-" or "" for stderr
	RingSize   int           // default DefaultRingSize
	Heartbeat  time.Duration // 0 disables
}

// New builds a tracer for cfg. LevelError always uses ring mode: its events
// are only for the dump after a failure.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	if cfg.Level == LevelError {
		cfg.Mode = ModeRing
	}
	if cfg.Mode == ModeRing {
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	}
	if cfg.Mode != ModeStream && cfg.Mode != ModeBoth {
		return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
	}

	format := cfg.Format
	if format == FormatAuto {
		format = FormatText
		if strings.HasSuffix(cfg.OutputPath, ".ndjson") || strings.HasSuffix(cfg.OutputPath, ".jsonl") {
			format = FormatNDJSON
		}
	}
	w, owned, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	stream := NewStreamTracer(w, cfg.Level, format)
	stream.owned = owned
	if cfg.Mode == ModeStream {
		return stream, nil
	}
	return &fanout{stream: stream, ring: NewRingTracer(cfg.RingSize, cfg.Level), level: cfg.Level}, nil
}

// openOutput reports owned=true when the tracer created the file and must
// close it.
func openOutput(cfg Config) (io.Writer, bool, error) {
	if cfg.Output != nil {
		return cfg.Output, false, nil
	}
	if cfg.OutputPath == "" || cfg.OutputPath == "-" {
		return os.Stderr, false, nil
	}
	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open trace output: %w", err)
	}
	return f, true, nil
}

// Ring returns the in-memory ring behind t, if there is one.
func Ring(t Tracer) (*RingTracer, bool) {
	switch tt := t.(type) {
	case *RingTracer:
		return tt, true
	case *fanout:
		return tt.ring, true
	}
	return nil, false
}
