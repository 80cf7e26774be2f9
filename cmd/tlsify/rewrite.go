package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tlsify/internal/analyze"
	"tlsify/internal/cfront"
	"tlsify/internal/diag"
	"tlsify/internal/observ"
	"tlsify/internal/pool"
	"tlsify/internal/rewrite"
	"tlsify/internal/source"
	"tlsify/internal/trace"
	"tlsify/internal/wire"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [flags] [source...]",
	Short: "Insert a thread-local keyword into global and static variables",
	Long: `Analyses every given C file (with the headers it includes) in parallel
worker processes, merges the proposed insertions and, unless any two
proposals disagree, rewrites the files under the source root in place.`,
	RunE: runRewrite,
}

func init() {
	rewriteCmd.Flags().StringArrayP("include", "I", nil, "include search directory (repeatable)")
	rewriteCmd.Flags().StringArrayP("source", "c", nil, "source file, directory or glob (repeatable)")
	rewriteCmd.Flags().StringP("source-root", "r", "", "only files under this directory are rewritten")
	rewriteCmd.Flags().IntP("jobs", "j", 0, "parallel workers (0 = number of CPUs)")
	rewriteCmd.Flags().Bool("dry-run", false, "analyse and check for conflicts without writing")
	rewriteCmd.Flags().Bool("diff", false, "with --dry-run, print the planned changes as a unified diff")
	rewriteCmd.Flags().Bool("in-process", false, "analyse on goroutines instead of worker processes")
	rewriteCmd.Flags().String("keyword", analyze.DefaultKeyword, "thread-local keyword to insert")
	rewriteCmd.Flags().StringArray("prefix-macro", nil, "macro that acts as a storage class (repeatable; default NON_EXEC_STATIC)")
	rewriteCmd.Flags().Bool("keep-going", true, "analyse files with syntax errors instead of skipping them")
	rewriteCmd.Flags().Bool("strict", false, "fail when a file cannot be parsed or a declaration cannot be rewritten")
	rewriteCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	rewriteCmd.Flags().String("config", "", "config file (default: nearest "+configFileName+")")
}

type rewriteOptions struct {
	sourceRoot   string
	includes     []string
	sources      []string
	jobs         int
	keyword      string
	prefixMacros []string
	keepGoing    bool
	strict       bool
	dryRun       bool
	showDiff     bool
	inProcess    bool
	ui           uiMode
	quiet        bool
	timings      bool
	logLevel     string
	logFormat    string
}

// readRewriteOptions merges flags over the config file. A flag given on the
// command line always wins.
func readRewriteOptions(cmd *cobra.Command, args []string) (*rewriteOptions, error) {
	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	project, err := loadProject(configPath, ".")
	if err != nil {
		return nil, err
	}

	opts := &rewriteOptions{keepGoing: true, keyword: analyze.DefaultKeyword}
	if project != nil {
		cfg := project.Config.Rewrite
		if cfg.SourceRoot != "" {
			opts.sourceRoot = project.resolve(cfg.SourceRoot)
		}
		opts.includes = project.resolveAll(cfg.Include)
		opts.sources = project.resolveAll(cfg.Sources)
		opts.jobs = cfg.Jobs
		if cfg.Keyword != "" {
			opts.keyword = cfg.Keyword
		}
		opts.prefixMacros = cfg.PrefixMacros
		if project.has("rewrite", "keep_going") {
			opts.keepGoing = cfg.KeepGoing
		}
		opts.strict = cfg.Strict
		opts.logLevel = project.Config.Log.Level
		opts.logFormat = project.Config.Log.Format
	}

	if flags.Changed("source-root") {
		if opts.sourceRoot, err = flags.GetString("source-root"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("include") {
		if opts.includes, err = flags.GetStringArray("include"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("source") || len(args) > 0 {
		cli, err := flags.GetStringArray("source")
		if err != nil {
			return nil, err
		}
		opts.sources = append(cli, args...)
	}
	if flags.Changed("jobs") {
		if opts.jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("keyword") {
		if opts.keyword, err = flags.GetString("keyword"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("prefix-macro") {
		if opts.prefixMacros, err = flags.GetStringArray("prefix-macro"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("keep-going") {
		if opts.keepGoing, err = flags.GetBool("keep-going"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("strict") {
		if opts.strict, err = flags.GetBool("strict"); err != nil {
			return nil, err
		}
	}
	if root.Changed("log-level") {
		if opts.logLevel, err = root.GetString("log-level"); err != nil {
			return nil, err
		}
	}
	if root.Changed("log-format") {
		if opts.logFormat, err = root.GetString("log-format"); err != nil {
			return nil, err
		}
	}
	if opts.dryRun, err = flags.GetBool("dry-run"); err != nil {
		return nil, err
	}
	if opts.showDiff, err = flags.GetBool("diff"); err != nil {
		return nil, err
	}
	if opts.inProcess, err = flags.GetBool("in-process"); err != nil {
		return nil, err
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return nil, err
	}
	if opts.ui, err = readUIMode(uiValue); err != nil {
		return nil, err
	}
	if opts.quiet, err = root.GetBool("quiet"); err != nil {
		return nil, err
	}
	if opts.timings, err = root.GetBool("timings"); err != nil {
		return nil, err
	}

	switch {
	case strings.TrimSpace(opts.sourceRoot) == "":
		return nil, errors.New("--source-root is required")
	case len(opts.sources) == 0:
		return nil, errors.New("no sources given (use --source or positional arguments)")
	case opts.jobs < 0:
		return nil, errors.New("--jobs must be >= 0")
	case strings.TrimSpace(opts.keyword) == "":
		return nil, errors.New("--keyword must not be empty")
	case opts.showDiff && !opts.dryRun:
		return nil, errors.New("--diff requires --dry-run")
	}
	if opts.sourceRoot, err = source.Canonical(opts.sourceRoot); err != nil {
		return nil, err
	}
	if opts.includes, err = absPaths(opts.includes); err != nil {
		return nil, err
	}
	return opts, nil
}

func runRewrite(cmd *cobra.Command, args []string) error {
	opts, err := readRewriteOptions(cmd, args)
	if err != nil {
		return err
	}
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()
	stats := &shardStats{}
	tr, err := setupTracing(cmd, stats.probe)
	if err != nil {
		return err
	}
	defer tr.close()
	runID := uuid.NewString()
	ctx := trace.WithRun(cmd.Context(), runID)

	useTUI := shouldUseTUI(opts.ui, opts.quiet)
	stderr := cmd.ErrOrStderr()
	// пока TUI владеет терминалом, лог копится и выводится после
	var held *bytes.Buffer
	logSink := io.Writer(stderr)
	if useTUI {
		held = &bytes.Buffer{}
		logSink = held
	}
	logOut := &lockedWriter{w: logSink}
	defer func() {
		if held != nil {
			_, _ = io.Copy(stderr, held)
		}
	}()

	logger := diag.NewLogger(diag.LogOptions{
		Level:  opts.logLevel,
		Format: opts.logFormat,
		Color:  !color.NoColor,
		TTY:    isTerminal(os.Stderr),
		Writer: logOut,
	})
	tally := newCodeTally()
	reporter := diag.MultiReporter{
		tally,
		diag.NewDedupReporter(diag.NewLogReporter(logger, diag.Field{Key: "run", Value: runID})),
	}

	timer := observ.NewTimer()
	defer func() {
		if opts.timings {
			fmt.Fprint(stderr, timer.Summary())
		}
	}()
	batch, ctx := trace.BeginCtx(ctx, trace.ScopeBatch, "rewrite")
	defer batch.End("")

	// фронтенд проверяем до запуска воркеров: его отсутствие фатально сразу
	probe, err := cfront.NewTreeSitter()
	if err != nil {
		diag.ReportError(reporter, diag.FrontEndUnavailable, "C front end unavailable").Err(err).Emit()
		return err
	}
	probe.Close()

	files, err := expandSources(opts.sources)
	if err != nil {
		return err
	}
	req := wire.Request{
		RunID:         runID,
		IncludePaths:  opts.includes,
		SourceFiles:   files,
		SourceRoot:    opts.sourceRoot,
		Keyword:       opts.keyword,
		PrefixMacros:  opts.prefixMacros,
		KeepGoing:     opts.keepGoing,
		ReportSkipped: strings.EqualFold(opts.logLevel, "debug"),
	}
	var runner pool.Runner = &pool.ProcessRunner{Stderr: logOut}
	if opts.inProcess {
		runner = pool.InProcessRunner{}
	}
	orch := &pool.Orchestrator{Runner: runner, Jobs: opts.jobs, Reporter: reporter, Progress: stats}

	done := timer.Track("analyze")
	var res *pool.Result
	if useTUI {
		res, err = runAnalysisWithUI(ctx, "tlsify: analysing "+opts.sourceRoot, orch, req)
	} else {
		res, err = orch.Run(ctx, req)
	}
	done(fmt.Sprintf("%d files", len(files)))
	if err != nil {
		tr.dumpRing()
		return fmt.Errorf("analysis failed, nothing written: %w", err)
	}
	timer.Add("shards", res.Shards)
	timer.Add("records", len(res.Records))

	if opts.strict {
		if n := tally.count(diag.ParseFailure, diag.InsertionPointNotFound); n > 0 {
			return fmt.Errorf("strict: %d file(s) or declaration(s) could not be analysed, nothing written", n)
		}
	}

	fs := source.NewFileSetWithBase(opts.sourceRoot)
	done = timer.Track("aggregate")
	plan, err := rewrite.Aggregate(res.Records, reporter, fs)
	done("")
	if err != nil {
		tr.dumpRing()
		return fmt.Errorf("nothing written: %w", err)
	}
	timer.Add("edits", plan.EditCount())

	out := cmd.OutOrStdout()
	if opts.dryRun {
		if opts.showDiff {
			patch, err := rewrite.UnifiedDiff(plan, fs)
			if err != nil {
				return err
			}
			if _, err := out.Write(patch); err != nil {
				return err
			}
		}
		if !opts.quiet {
			printDryRunSummary(stderr, plan)
		}
		return nil
	}

	done = timer.Track("apply")
	results := rewrite.ApplyPlan(ctx, plan, reporter)
	done(fmt.Sprintf("%d files", len(results)))
	if failed := printApplySummary(out, results, opts.quiet); failed > 0 {
		return fmt.Errorf("%d file(s) could not be rewritten", failed)
	}
	return nil
}

// shardStats counts shard progress for trace heartbeats.
type shardStats struct {
	running atomic.Int32
	done    atomic.Int32
	failed  atomic.Int32
	records atomic.Int64
}

func (s *shardStats) OnEvent(evt pool.Event) {
	switch evt.Status {
	case pool.StatusAnalyzing:
		s.running.Add(1)
	case pool.StatusDone:
		s.running.Add(-1)
		s.done.Add(1)
		s.records.Add(int64(evt.Records))
	case pool.StatusError:
		s.running.Add(-1)
		s.failed.Add(1)
	}
}

func (s *shardStats) probe() map[string]string {
	return map[string]string{
		"shards_running": strconv.Itoa(int(s.running.Load())),
		"shards_done":    strconv.Itoa(int(s.done.Load())),
		"shards_failed":  strconv.Itoa(int(s.failed.Load())),
		"records":        strconv.FormatInt(s.records.Load(), 10),
	}
}

// codeTally counts diagnostics per code.
type codeTally struct {
	mu     sync.Mutex
	counts map[diag.Code]int
}

func newCodeTally() *codeTally {
	return &codeTally{counts: make(map[diag.Code]int)}
}

func (t *codeTally) Report(d diag.Diagnostic) {
	t.mu.Lock()
	t.counts[d.Code]++
	t.mu.Unlock()
}

func (t *codeTally) count(codes ...diag.Code) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range codes {
		n += t.counts[c]
	}
	return n
}
