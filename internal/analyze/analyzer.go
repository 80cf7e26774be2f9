// Package analyze finds global and static variable declarations that should
// become thread-local and proposes one keyword insertion for each.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tlsify/internal/cfront"
	"tlsify/internal/diag"
	"tlsify/internal/rewrite"
	"tlsify/internal/source"
)

const (
	// DefaultKeyword is the storage-class keyword inserted by default.
	DefaultKeyword = "__thread"
	// Sentinel is a placeholder declaration used by a macro trick; it is
	// never a real variable.
	Sentinel = "no_such_variable"
)

// DefaultPrefixMacros are macros that expand to a storage class and may
// precede the insertion point.
var DefaultPrefixMacros = []string{"NON_EXEC_STATIC"}

// Options configure an Analyzer.
type Options struct {
	// SourceRoot bounds which physical files may receive edits.
	SourceRoot   string
	IncludePaths []string
	Keyword      string
	PrefixMacros []string
	KeepGoing    bool
	// ReportSkipped emits a SkippedDecl diagnostic for every candidate
	// filtered out. Off by default: shared headers make it very chatty.
	ReportSkipped bool
}

func (o Options) withDefaults() Options {
	if o.Keyword == "" {
		o.Keyword = DefaultKeyword
	}
	if o.PrefixMacros == nil {
		o.PrefixMacros = DefaultPrefixMacros
	}
	return o
}

// Analyzer runs candidate discovery over translation units parsed by one
// front end. It is not safe for concurrent use.
type Analyzer struct {
	fe       cfront.FrontEnd
	opts     Options
	root     string
	prefix   *regexp.Regexp
	reporter diag.Reporter
	files    *source.FileSet
}

// New creates an Analyzer that owns nothing but the given front end handle;
// the caller closes fe.
func New(fe cfront.FrontEnd, opts Options, r diag.Reporter) (*Analyzer, error) {
	if fe == nil {
		return nil, cfront.ErrFrontEndUnavailable
	}
	opts = opts.withDefaults()
	if strings.TrimSpace(opts.SourceRoot) == "" {
		return nil, errors.New("source root is required")
	}
	root, err := source.Canonical(opts.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if r == nil {
		r = diag.NopReporter{}
	}
	return &Analyzer{
		fe:       fe,
		opts:     opts,
		root:     root,
		prefix:   PrefixPattern(opts.PrefixMacros),
		reporter: r,
		files:    source.NewFileSet(),
	}, nil
}

// PrefixPattern matches, anchored at the start of a declaration, any run of
// const, static, extern and the given macros. It always matches, possibly
// the empty string.
func PrefixPattern(macros []string) *regexp.Regexp {
	words := []string{"const", "static", "extern"}
	for _, m := range macros {
		if m = strings.TrimSpace(m); m != "" {
			words = append(words, regexp.QuoteMeta(m))
		}
	}
	return regexp.MustCompile(`^\s*(?:(?:` + strings.Join(words, "|") + `)\b\s*)*`)
}

// InsertText is the text inserted before each candidate's type.
func (a *Analyzer) InsertText() string {
	return a.opts.Keyword + " "
}

// Analyze processes paths in order. Only fatal conditions (front end
// unavailable, cancellation) stop it; everything else is reported and the
// file contributes what it can.
func (a *Analyzer) Analyze(ctx context.Context, paths []string) ([]rewrite.Record, error) {
	var out []rewrite.Record
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		recs, err := a.AnalyzeFile(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// AnalyzeFile parses one translation unit and returns its edit proposals.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) ([]rewrite.Record, error) {
	unit, err := a.fe.Parse(ctx, path, cfront.ParseOptions{
		IncludePaths:        a.opts.IncludePaths,
		KeepGoing:           a.opts.KeepGoing,
		ThreadLocalKeywords: []string{a.opts.Keyword},
		SpecifierMacros:     a.opts.PrefixMacros,
	})
	if err != nil {
		if errors.Is(err, cfront.ErrFrontEndUnavailable) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		diag.ReportWarning(a.reporter, diag.ParseFailure, "file failed to parse, no edits from it").
			Path(path).
			Err(err).
			Emit()
		return nil, nil
	}

	if unit.SyntaxErrors > 0 {
		diag.ReportInfo(a.reporter, diag.FrontInfo, "analysing partial tree").
			Path(unit.Path).
			Str("errors", strconv.Itoa(unit.SyntaxErrors)).
			Emit()
	}
	for _, inc := range unit.Unresolved {
		diag.ReportInfo(a.reporter, diag.IncludeNotFound, "include not found: "+inc).
			Path(unit.Path).
			Emit()
	}

	var out []rewrite.Record
	seen := make(map[string]bool)
	cfront.Walk(unit.Root, func(n *cfront.Node, depth int) bool {
		if n.Kind != cfront.KindVar {
			return true
		}
		fileScope := depth == 1
		if !a.isCandidate(n, fileScope) || !source.Within(n.Range.File, a.root) {
			return true
		}
		rec, ok := a.propose(unit, n, fileScope)
		if !ok {
			return true
		}
		key := rec.Path + "\x00" + strconv.FormatUint(uint64(rec.Offset), 10)
		if !seen[key] {
			seen[key] = true
			out = append(out, rec)
		}
		return true
	})

	diag.ReportInfo(a.reporter, diag.Progress, "analysed").
		Path(unit.Path).
		Str("files", strconv.Itoa(len(unit.Files))).
		Str("edits", strconv.Itoa(len(out))).
		Emit()
	return out, nil
}

// isCandidate: a variable at file scope, or a static one anywhere. A macro
// from PrefixMacros counts as static.
func (a *Analyzer) isCandidate(n *cfront.Node, fileScope bool) bool {
	if fileScope || n.Storage == "static" {
		return true
	}
	for _, s := range n.Specifiers {
		for _, m := range a.opts.PrefixMacros {
			if s == m {
				return true
			}
		}
	}
	return false
}

func (a *Analyzer) propose(unit *cfront.Unit, n *cfront.Node, fileScope bool) (rewrite.Record, bool) {
	switch {
	case fileScope && n.Name == Sentinel:
		a.skipped(n, "sentinel")
		return rewrite.Record{}, false
	case n.Type.IsConst():
		a.skipped(n, "const")
		return rewrite.Record{}, false
	case n.ThreadLocal:
		diag.ReportError(a.reporter, diag.ExistingTLS, fmt.Sprintf("%s is already thread-local", n.Name)).
			At(n.Range.File, n.Range.Start).
			Pos(a.position(unit, n.Range.File, n.Range.Start)).
			Emit()
		return rewrite.Record{}, false
	}

	off, ok := a.insertionPoint(unit, n)
	if !ok {
		pos := a.position(unit, n.Range.File, n.Range.Start)
		b := diag.ReportWarning(a.reporter, diag.InsertionPointNotFound, fmt.Sprintf("no insertion point for %s", n.Name)).
			At(n.Range.File, n.Range.Start).
			Pos(pos).
			Str("range", n.Range.String())
		if f := a.file(unit, n.Range.File); f != nil && pos.Line > 0 {
			b.Str("line", strings.TrimSpace(f.Line(pos.Line)))
		}
		b.Emit()
		return rewrite.Record{}, false
	}
	return rewrite.Record{
		Path:   n.Range.File,
		Offset: off,
		Text:   a.InsertText(),
		Unit:   unit.Path,
		Name:   n.Name,
	}, true
}

// insertionPoint matches the prefix pattern against the declaration text
// and returns the offset right after it.
func (a *Analyzer) insertionPoint(unit *cfront.Unit, n *cfront.Node) (uint32, bool) {
	f := a.file(unit, n.Range.File)
	if f == nil {
		return 0, false
	}
	r := n.Range
	if r.Start >= r.End || r.End > f.Size() {
		return 0, false
	}
	text := f.Content[r.Start:r.End]
	loc := a.prefix.FindIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] >= len(text) {
		return 0, false
	}
	return r.Start + uint32(loc[1]), true // #nosec G115 -- loc[1] < len(text) <= uint32 range
}

func (a *Analyzer) file(unit *cfront.Unit, path string) *source.File {
	if f, ok := a.files.GetByPath(path); ok && unitHas(unit, path, f) {
		return f
	}
	content, ok := unit.Sources[path]
	if !ok {
		return nil
	}
	id := a.files.Add(path, content, 0)
	return a.files.Get(id)
}

// unitHas reports whether the cached file still holds the bytes the unit
// was parsed from.
func unitHas(unit *cfront.Unit, path string, f *source.File) bool {
	content, ok := unit.Sources[path]
	if !ok {
		return true
	}
	return len(content) == len(f.Content) && (len(content) == 0 || &content[0] == &f.Content[0])
}

func (a *Analyzer) position(unit *cfront.Unit, path string, off uint32) source.LineCol {
	if f := a.file(unit, path); f != nil {
		return f.Position(off)
	}
	return source.LineCol{}
}

func (a *Analyzer) skipped(n *cfront.Node, reason string) {
	if !a.opts.ReportSkipped {
		return
	}
	diag.ReportInfo(a.reporter, diag.SkippedDecl, fmt.Sprintf("%s skipped", n.Name)).
		At(n.Range.File, n.Range.Start).
		Str("reason", reason).
		Emit()
}
