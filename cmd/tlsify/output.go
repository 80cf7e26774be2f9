package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"tlsify/internal/rewrite"
)

// lockedWriter serialises writes from worker stderr pipes and the logger.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

var (
	okLabel   = color.New(color.FgGreen, color.Bold)
	failLabel = color.New(color.FgRed, color.Bold)
	dryLabel  = color.New(color.FgCyan, color.Bold)
)

// printApplySummary prints one line per file (failures always, successes
// unless quiet) and a total.
func printApplySummary(out io.Writer, results []rewrite.FileResult, quiet bool) (failed int) {
	edits := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", failLabel.Sprint("failed"), r.Path, r.Err)
			continue
		}
		edits += r.Edits
		if !quiet {
			fmt.Fprintf(out, "%s %s (%d)\n", okLabel.Sprint("ok"), r.Path, r.Edits)
		}
	}
	fmt.Fprintf(out, "%s %d file(s), %d declaration(s)\n", okLabel.Sprint("rewrote"), len(results)-failed, edits)
	if failed > 0 {
		fmt.Fprintf(out, "%s %d file(s)\n", failLabel.Sprint("failed"), failed)
	}
	return failed
}

func printDryRunSummary(out io.Writer, plan *rewrite.Plan) {
	fmt.Fprintf(out, "%s would rewrite %d file(s), %d declaration(s)\n", dryLabel.Sprint("dry run:"), len(plan.Files), plan.EditCount())
}
