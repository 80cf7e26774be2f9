package pool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"tlsify/internal/wire"
)

// Runner executes one shard request and returns the shard's response.
type Runner interface {
	Run(ctx context.Context, req *wire.Request) (*wire.Response, error)
}

// WorkerCommand is the hidden subcommand a ProcessRunner invokes by default.
const WorkerCommand = "worker"

const stderrTail = 8 << 10

// ProcessRunner runs every shard in a fresh child process: the current
// executable re-invoked as `worker`. The request goes to the child's stdin
// and the whole of its stdout is the response.
type ProcessRunner struct {
	Exe  string   // defaults to os.Executable()
	Args []string // defaults to [WorkerCommand]
	Env  []string // appended to the parent environment
	// Stderr receives the worker's stderr as it is written; nil drops it.
	// The last few KiB are kept for the error message either way.
	Stderr io.Writer
}

func (p *ProcessRunner) Run(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	exe := p.Exe
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, &WorkerError{Shard: req.Shard, ExitCode: -1, Err: err}
		}
		exe = self
	}
	args := p.Args
	if args == nil {
		args = []string{WorkerCommand}
	}

	var in bytes.Buffer
	if err := wire.WriteRequest(&in, req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	// #nosec G204 -- exe is this binary or an explicit override
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdin = &in
	var out bytes.Buffer
	cmd.Stdout = &out
	tail := newTailBuffer(stderrTail)
	if p.Stderr != nil {
		cmd.Stderr = io.MultiWriter(tail, p.Stderr)
	} else {
		cmd.Stderr = tail
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &WorkerError{Shard: req.Shard, ExitCode: code, Stderr: tail.String(), Err: err}
	}

	resp, err := wire.ReadResponse(&out)
	if err != nil {
		return nil, &WorkerError{Shard: req.Shard, Stderr: tail.String(), Err: err}
	}
	return resp, nil
}
