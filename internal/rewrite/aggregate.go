package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"tlsify/internal/diag"
	"tlsify/internal/source"
)

// FileEdits is the finalized, ascending, non-overlapping edit list of one file.
type FileEdits struct {
	Path  string
	Edits []Edit
}

// Plan is the aggregator's output: one FileEdits per touched file, ordered
// by path.
type Plan struct {
	Files []FileEdits
}

// EditCount returns the number of edits across all files.
func (p *Plan) EditCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, f := range p.Files {
		n += len(f.Edits)
	}
	return n
}

// Locator resolves byte offsets into line/column for diagnostics.
// *source.FileSet implements it.
type Locator interface {
	Locate(path string, offset uint32) (source.LineCol, error)
}

// Proposal is one distinct (length, text) variant at a location together
// with every origin that proposed it.
type Proposal struct {
	Edit    Edit
	Origins []Origin
}

// Conflict describes one location where proposals disagree, or where an
// accepted edit overlaps the next one in the same file.
type Conflict struct {
	Path      string
	Offset    uint32
	Pos       source.LineCol
	Overlap   bool
	Proposals []Proposal
}

// ConflictError is returned by Aggregate; it wraps ErrConflictingEdits.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	files := make(map[string]struct{})
	for _, c := range e.Conflicts {
		files[c.Path] = struct{}{}
	}
	return fmt.Sprintf("%s: %d location(s) in %d file(s)", ErrConflictingEdits, len(e.Conflicts), len(files))
}

func (e *ConflictError) Unwrap() error { return ErrConflictingEdits }

type variantKey struct {
	length uint32
	text   string
}

type offsetGroup struct {
	variants []variantKey
	origins  map[variantKey][]Origin
}

// Aggregate groups records by file and offset and collapses each group to
// its distinct (length, text) values. A group with one value becomes an
// edit; a group with more is a conflict, as is an accepted edit that
// overlaps the following one. On any conflict every proposal is reported
// and the returned plan is nil: nothing may be written.
func Aggregate(records []Record, r diag.Reporter, loc Locator) (*Plan, error) {
	if r == nil {
		r = diag.NopReporter{}
	}

	byFile := make(map[string]map[uint32]*offsetGroup)
	for _, rec := range records {
		offsets := byFile[rec.Path]
		if offsets == nil {
			offsets = make(map[uint32]*offsetGroup)
			byFile[rec.Path] = offsets
		}
		g := offsets[rec.Offset]
		if g == nil {
			g = &offsetGroup{origins: make(map[variantKey][]Origin)}
			offsets[rec.Offset] = g
		}
		key := variantKey{length: rec.Length, text: rec.Text}
		if _, seen := g.origins[key]; !seen {
			g.variants = append(g.variants, key)
		}
		g.origins[key] = appendOrigin(g.origins[key], rec.Origin())
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	plan := &Plan{Files: make([]FileEdits, 0, len(paths))}
	var conflicts []Conflict

	for _, path := range paths {
		offsets := byFile[path]
		keys := make([]uint32, 0, len(offsets))
		for off := range offsets {
			keys = append(keys, off)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		edits := make([]Edit, 0, len(keys))
		accepted := make([][]Origin, 0, len(keys))
		for _, off := range keys {
			g := offsets[off]
			if len(g.variants) > 1 {
				conflicts = append(conflicts, newConflict(path, off, g, loc))
				continue
			}
			v := g.variants[0]
			edits = append(edits, Edit{Offset: off, Length: v.length, Text: v.text})
			accepted = append(accepted, g.origins[v])
		}

		for i := 1; i < len(edits); i++ {
			prev, cur := edits[i-1], edits[i]
			if prev.End() <= cur.Offset {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Path:    path,
				Offset:  cur.Offset,
				Pos:     locate(loc, path, cur.Offset),
				Overlap: true,
				Proposals: []Proposal{
					{Edit: prev, Origins: accepted[i-1]},
					{Edit: cur, Origins: accepted[i]},
				},
			})
		}

		if len(edits) > 0 {
			plan.Files = append(plan.Files, FileEdits{Path: path, Edits: edits})
		}
	}

	if len(conflicts) == 0 {
		return plan, nil
	}
	for _, c := range conflicts {
		reportConflict(r, c)
	}
	return nil, &ConflictError{Conflicts: conflicts}
}

func appendOrigin(list []Origin, o Origin) []Origin {
	for _, have := range list {
		if have == o {
			return list
		}
	}
	return append(list, o)
}

func newConflict(path string, off uint32, g *offsetGroup, loc Locator) Conflict {
	c := Conflict{
		Path:   path,
		Offset: off,
		Pos:    locate(loc, path, off),
	}
	for _, v := range g.variants {
		c.Proposals = append(c.Proposals, Proposal{
			Edit:    Edit{Offset: off, Length: v.length, Text: v.text},
			Origins: g.origins[v],
		})
	}
	return c
}

func locate(loc Locator, path string, off uint32) source.LineCol {
	if loc == nil {
		return source.LineCol{}
	}
	pos, err := loc.Locate(path, off)
	if err != nil {
		return source.LineCol{}
	}
	return pos
}

func reportConflict(r diag.Reporter, c Conflict) {
	where := fmt.Sprintf("%s@%d", c.Path, c.Offset)
	if c.Pos.Line > 0 {
		where = fmt.Sprintf("%s:%d:%d", c.Path, c.Pos.Line, c.Pos.Col)
	}
	code, what := diag.ConflictingEdits, "conflicting proposal"
	if c.Overlap {
		code, what = diag.OverlappingEdits, "overlapping edit"
	}
	for i, p := range c.Proposals {
		names := make([]string, 0, len(p.Origins))
		for _, o := range p.Origins {
			names = append(names, o.String())
		}
		var pos source.LineCol
		if p.Edit.Offset == c.Offset {
			pos = c.Pos
		}
		diag.ReportError(r, code, fmt.Sprintf("%s %d/%d at %s: %s", what, i+1, len(c.Proposals), where, p.Edit)).
			At(c.Path, p.Edit.Offset).
			Pos(pos).
			Str("length", fmt.Sprint(p.Edit.Length)).
			Str("text", p.Edit.Text).
			Str("origins", strings.Join(names, ", ")).
			Emit()
	}
}
