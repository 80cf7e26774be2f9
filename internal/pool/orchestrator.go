// Package pool partitions the input files into shards, runs one worker per
// shard and collects every worker's raw edit records. Any worker failure
// fails the whole batch.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"tlsify/internal/diag"
	"tlsify/internal/rewrite"
	"tlsify/internal/trace"
	"tlsify/internal/wire"
)

// Orchestrator fans shards out to a Runner.
type Orchestrator struct {
	Runner   Runner
	Jobs     int // parallel units; <= 0 means runtime.NumCPU()
	Reporter diag.Reporter
	Progress ProgressSink
}

// Result is the union of all shard responses, in shard order.
type Result struct {
	Records []rewrite.Record
	Shards  int
	Files   int
}

// Run shards base.SourceFiles and analyses every shard. The first failing
// shard cancels the rest; in that case no records are returned at all.
// Diagnostics from shards that did answer are replayed either way.
func (o *Orchestrator) Run(ctx context.Context, base wire.Request) (*Result, error) {
	runner := o.Runner
	if runner == nil {
		runner = &ProcessRunner{}
	}
	reporter := o.Reporter
	if reporter == nil {
		reporter = diag.NopReporter{}
	}
	shards := o.Plan(base.SourceFiles)
	result := &Result{Shards: len(shards), Files: len(base.SourceFiles)}
	if len(shards) == 0 {
		return result, nil
	}
	for i, files := range shards {
		o.emit(Event{Shard: i, Files: len(files), Status: StatusQueued})
	}

	sp, ctx := trace.BeginCtx(ctx, trace.ScopePhase, "analyze")
	sp.WithExtra("shards", strconv.Itoa(len(shards)))
	defer sp.End("")

	// индексы уникальны для каждой горутины, мьютекс не нужен
	responses := make([]*wire.Response, len(shards))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(shards))
	for i, files := range shards {
		g.Go(func() error {
			req := base
			req.Shard = i
			req.SourceFiles = files

			shardSpan, sctx := trace.BeginCtx(trace.WithShard(gctx, i), trace.ScopeShard, "shard "+strconv.Itoa(i))
			o.emit(Event{Shard: i, Files: len(files), Status: StatusAnalyzing})
			start := time.Now()

			resp, err := runner.Run(sctx, &req)
			elapsed := time.Since(start)
			if err != nil {
				shardSpan.End("error")
				o.emit(Event{Shard: i, Files: len(files), Status: StatusError, Err: err, Elapsed: elapsed})
				return fmt.Errorf("shard %d: %w", i, err)
			}
			responses[i] = resp
			shardSpan.WithExtra("records", strconv.Itoa(len(resp.Records))).End("")
			o.emit(Event{Shard: i, Files: len(files), Status: StatusDone, Elapsed: elapsed, Records: len(resp.Records)})
			return nil
		})
	}
	err := g.Wait()

	for _, resp := range responses {
		if resp == nil {
			continue
		}
		for _, d := range resp.Diagnostics {
			reporter.Report(d)
		}
	}
	if err != nil {
		diag.ReportError(reporter, diag.WorkerFailure, "analysis aborted, no file will be written").
			Err(err).
			Emit()
		return nil, err
	}

	for _, resp := range responses {
		result.Records = append(result.Records, resp.Records...)
	}
	return result, nil
}

// Plan returns the shards Run will use for files.
func (o *Orchestrator) Plan(files []string) [][]string {
	jobs := o.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return Shard(files, jobs)
}

func (o *Orchestrator) emit(evt Event) {
	if o.Progress != nil {
		o.Progress.OnEvent(evt)
	}
}
