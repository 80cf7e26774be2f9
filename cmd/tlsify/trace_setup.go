package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tlsify/internal/trace"
)

type tracing struct {
	tracer    trace.Tracer
	heartbeat *trace.Heartbeat
	errOut    io.Writer
}

// setupTracing reads the --trace* flags, attaches a tracer to the command
// context and returns a handle whose close flushes it. probe feeds the
// heartbeat events and may be nil.
func setupTracing(cmd *cobra.Command, probe trace.Probe) (*tracing, error) {
	flags := cmd.Root().PersistentFlags()
	output, err := flags.GetString("trace")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := flags.GetString("trace-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := flags.GetString("trace-mode")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	interval, err := flags.GetDuration("trace-heartbeat")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace level: %w", err)
	}
	// --trace без уровня включает фазы
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	t := &tracing{tracer: trace.Nop, errOut: cmd.ErrOrStderr()}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return t, nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid trace mode: %w", err)
	}
	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: output,
		RingSize:   ringSize,
		Heartbeat:  interval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	t.tracer = tracer
	cmd.SetContext(trace.WithTracer(cmd.Context(), tracer))
	if interval > 0 {
		t.heartbeat = trace.StartHeartbeat(tracer, interval, probe)
	}
	return t, nil
}

// dumpRing writes the in-memory ring to stderr. Called when the batch
// fails, so that ring mode keeps the events that led up to it.
func (t *tracing) dumpRing() {
	ring, ok := trace.Ring(t.tracer)
	if !ok {
		return
	}
	if n := ring.Dropped(); n > 0 {
		fmt.Fprintf(t.errOut, "trace: last events before failure (%d older dropped):\n", n)
	} else {
		fmt.Fprintln(t.errOut, "trace: last events before failure:")
	}
	if err := ring.Dump(t.errOut, trace.FormatText, nil); err != nil {
		fmt.Fprintf(t.errOut, "trace: dump error: %v\n", err)
	}
}

func (t *tracing) close() {
	if t == nil {
		return
	}
	if t.heartbeat != nil {
		t.heartbeat.Stop()
	}
	if err := t.tracer.Flush(); err != nil {
		fmt.Fprintf(t.errOut, "trace: flush error: %v\n", err)
	}
	if err := t.tracer.Close(); err != nil {
		fmt.Fprintf(t.errOut, "trace: close error: %v\n", err)
	}
}
