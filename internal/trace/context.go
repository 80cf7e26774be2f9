package trace

import "context"

type ctxKey struct{}

// carrier is what a context holds: the tracer, the innermost open span and
// the batch it belongs to.
type carrier struct {
	tracer Tracer
	span   uint64
	run    string
	shard  int // -1 outside a shard
}

func fromCtx(ctx context.Context) carrier {
	if ctx != nil {
		if c, ok := ctx.Value(ctxKey{}).(carrier); ok {
			return c
		}
	}
	return carrier{tracer: Nop, shard: -1}
}

func (c carrier) into(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return fromCtx(ctx).tracer
}

// WithTracer attaches t to ctx. Run and shard tags already on ctx are kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	c := fromCtx(ctx)
	c.tracer = t
	return c.into(ctx)
}

// WithRun tags every event emitted under ctx with the batch run ID.
func WithRun(ctx context.Context, run string) context.Context {
	c := fromCtx(ctx)
	c.run = run
	return c.into(ctx)
}

// WithShard tags every event emitted under ctx with a shard index.
func WithShard(ctx context.Context, shard int) context.Context {
	c := fromCtx(ctx)
	c.shard = shard
	return c.into(ctx)
}

// CurrentSpan returns the ID of the innermost span open on ctx, 0 if none.
func CurrentSpan(ctx context.Context) uint64 {
	return fromCtx(ctx).span
}
