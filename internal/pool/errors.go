package pool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWorkerFailed marks every worker failure: a non-zero exit, a crash, or
// a response that cannot be decoded.
var ErrWorkerFailed = errors.New("worker failed")

// WorkerError describes one failed shard.
type WorkerError struct {
	Shard    int
	ExitCode int    // -1 when the process did not exit normally
	Stderr   string // tail of the worker's stderr
	Err      error
}

func (e *WorkerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "worker for shard %d failed", e.Shard)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		b.WriteString("\n")
		b.WriteString(tail)
	}
	return b.String()
}

func (e *WorkerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWorkerFailed}
	}
	return []error{ErrWorkerFailed, e.Err}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
