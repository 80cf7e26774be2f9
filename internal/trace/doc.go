// Package trace records where a rewrite batch spends its time and where it
// got stuck.
//
// Enable it from the command line:
//
//	tlsify rewrite --trace=- --trace-level=detail -c src/backend
//
// Tracers: Nop (disabled), StreamTracer (immediate write) and RingTracer
// (last N events kept for a dump on failure); mode "both" feeds the two.
// Levels gate scopes: phase shows batch and phase boundaries, detail adds
// shards, debug adds every written file. Events carry the batch run ID and
// the shard index taken from the context.
//
// Tracers travel through context:
//
//	ctx = trace.WithRun(trace.WithTracer(ctx, tracer), runID)
//	span, ctx := trace.BeginCtx(ctx, trace.ScopePhase, "analyze")
//	defer span.End("")
package trace
