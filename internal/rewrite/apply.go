package rewrite

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"fortio.org/safecast"

	"tlsify/internal/diag"
	"tlsify/internal/trace"
)

// Apply splices edits into src in one left-to-right pass. Edits must be
// sorted by strictly ascending offset and must not overlap; every edit must
// lie within src.
func Apply(src []byte, edits []Edit) ([]byte, error) {
	size, err := safecast.Conv[uint32](len(src))
	if err != nil {
		return nil, fmt.Errorf("file too large: %w", err)
	}

	grow := 0
	for _, e := range edits {
		grow += len(e.Text)
	}
	out := make([]byte, 0, len(src)+grow)

	var cursor uint32
	for i, e := range edits {
		if e.End() < e.Offset || e.End() > size {
			return nil, fmt.Errorf("%w: %s in %d bytes", ErrEditOutOfRange, e, size)
		}
		if e.Offset < cursor || (i > 0 && e.Offset <= edits[i-1].Offset) {
			return nil, fmt.Errorf("%w: %s after %s", ErrOverlappingEdits, e, edits[i-1])
		}
		out = append(out, src[cursor:e.Offset]...)
		out = append(out, e.Text...)
		cursor = e.End()
	}
	out = append(out, src[cursor:]...)
	return out, nil
}

// FileResult is the per-file outcome of ApplyPlan.
type FileResult struct {
	Path  string
	Edits int
	Err   error
}

// ApplyPlan rewrites every file of the plan in path order. Each file is read,
// patched and written independently: a failure is reported for that file
// and the remaining files are still processed. The original file mode is
// preserved. Cancellation stops before the next file.
func ApplyPlan(ctx context.Context, plan *Plan, r diag.Reporter) []FileResult {
	if plan == nil {
		return nil
	}
	if r == nil {
		r = diag.NopReporter{}
	}
	phase, ctx := trace.BeginCtx(ctx, trace.ScopePhase, "apply")
	defer phase.End("")

	results := make([]FileResult, 0, len(plan.Files))
	for _, f := range plan.Files {
		res := FileResult{Path: f.Path, Edits: len(f.Edits)}
		sp, _ := trace.BeginCtx(ctx, trace.ScopeFile, f.Path)
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Err = applyFile(f)
		}
		if res.Err != nil {
			sp.End("error")
		} else {
			sp.WithExtra("edits", strconv.Itoa(res.Edits)).End("")
		}
		if res.Err != nil {
			diag.ReportError(r, diag.FileIO, "rewrite failed").
				Path(f.Path).
				Err(res.Err).
				Emit()
		} else {
			diag.ReportInfo(r, diag.FileRewritten, fmt.Sprintf("rewrote %d declaration(s)", len(f.Edits))).
				Path(f.Path).
				Emit()
		}
		results = append(results, res)
	}
	return results
}

func applyFile(f FileEdits) error {
	// #nosec G304 -- paths come from the analyzer and lie under the source root
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	out, err := Apply(src, f.Edits)
	if err != nil {
		return fmt.Errorf("apply %s: %w", f.Path, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(f.Path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(f.Path, out, mode); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	return nil
}
