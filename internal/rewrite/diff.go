package rewrite

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"fortio.org/safecast"
	"github.com/sourcegraph/go-diff/diff"

	"tlsify/internal/source"
)

// DiffContext is the number of unchanged lines shown around each change.
const DiffContext = 3

// UnifiedDiff renders the plan as a multi-file unified diff without touching
// the files. Contents come from fs (loaded on first use); paths in the
// headers are relative to fs.BaseDir when possible.
func UnifiedDiff(plan *Plan, fs *source.FileSet) ([]byte, error) {
	if plan == nil {
		return nil, nil
	}
	diffs := make([]*diff.FileDiff, 0, len(plan.Files))
	for _, f := range plan.Files {
		file, err := fs.Ensure(f.Path)
		if err != nil {
			return nil, err
		}
		fd, err := FileDiff(source.RelPath(f.Path, fs.BaseDir()), file.Content, f.Edits)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		diffs = append(diffs, fd)
	}
	return diff.PrintMultiFileDiff(diffs)
}

// FileDiff builds the hunks for one file directly from its edits: every line
// an edit touches is shown as removed and re-added, with DiffContext lines
// around it.
func FileDiff(name string, orig []byte, edits []Edit) (*diff.FileDiff, error) {
	if _, err := Apply(orig, edits); err != nil {
		return nil, err
	}
	name = filepath.ToSlash(name)
	fd := &diff.FileDiff{
		OrigName: "a/" + name,
		NewName:  "b/" + name,
	}

	lines := splitLines(orig)
	starts := make([]int, len(lines)+1)
	for i, l := range lines {
		starts[i+1] = starts[i] + len(l)
	}
	lineOf := func(off int) int {
		// индекс строки, содержащей off; off == len(orig) попадает в последнюю строку
		i := sort.Search(len(lines), func(i int) bool { return starts[i+1] > off })
		if i == len(lines) && i > 0 {
			i--
		}
		return i
	}

	regions := changedRegions(edits, lineOf)
	if len(lines) == 0 {
		lines = [][]byte{{}}
		starts = []int{0, 0}
	}

	delta := 0
	for _, group := range groupRegions(regions, DiffContext) {
		lo := max(group[0].first-DiffContext, 0)
		hi := min(group[len(group)-1].last+DiffContext, len(lines)-1)

		deltaBefore := delta
		var body bytes.Buffer
		noNewlineAt := 0
		origCount, newCount := 0, 0
		writeLine := func(prefix byte, line []byte, last bool) {
			body.WriteByte(prefix)
			body.Write(line)
			if !bytes.HasSuffix(line, []byte{'\n'}) && !last {
				body.WriteByte('\n')
			}
		}

		next := lo
		for _, rg := range group {
			for ; next < rg.first; next++ {
				writeLine(' ', lines[next], next == len(lines)-1)
				origCount++
				newCount++
			}
			for i := rg.first; i <= rg.last; i++ {
				writeLine('-', lines[i], false)
				origCount++
				if i == len(lines)-1 && !bytes.HasSuffix(lines[i], []byte{'\n'}) {
					noNewlineAt = body.Len()
				}
			}
			chunk := orig[starts[rg.first]:starts[rg.last+1]]
			shifted := make([]Edit, len(rg.edits))
			for i, e := range rg.edits {
				e.Offset -= uint32(starts[rg.first]) // #nosec G115 -- bounded by len(orig), checked by Apply
				shifted[i] = e
			}
			patched, err := Apply(chunk, shifted)
			if err != nil {
				return nil, err
			}
			newLines := splitLines(patched)
			for i, l := range newLines {
				writeLine('+', l, rg.last == len(lines)-1 && i == len(newLines)-1)
				newCount++
			}
			delta += len(newLines) - (rg.last - rg.first + 1)
			next = rg.last + 1
		}
		for ; next <= hi; next++ {
			writeLine(' ', lines[next], next == len(lines)-1)
			origCount++
			newCount++
		}

		h, err := newHunk(lo, origCount, lo+deltaBefore, newCount)
		if err != nil {
			return nil, err
		}
		h.OrigNoNewlineAt = int32(noNewlineAt) // #nosec G115 -- hunk bodies are small
		h.Body = body.Bytes()
		fd.Hunks = append(fd.Hunks, h)
	}
	return fd, nil
}

type region struct {
	first, last int // inclusive line indices in the original
	edits       []Edit
}

func changedRegions(edits []Edit, lineOf func(int) int) []region {
	var out []region
	for _, e := range edits {
		first := lineOf(int(e.Offset))
		last := lineOf(int(e.End()))
		if e.Length > 0 && last > first && int(e.End()) > 0 {
			// правка, кончающаяся ровно на переводе строки, не задевает следующую строку
			if l := lineOf(int(e.End()) - 1); l < last {
				last = l
			}
		}
		if n := len(out); n > 0 && first <= out[n-1].last {
			out[n-1].last = max(out[n-1].last, last)
			out[n-1].edits = append(out[n-1].edits, e)
			continue
		}
		out = append(out, region{first: first, last: last, edits: []Edit{e}})
	}
	return out
}

func groupRegions(regions []region, context int) [][]region {
	var groups [][]region
	for _, rg := range regions {
		if n := len(groups); n > 0 {
			prev := groups[n-1][len(groups[n-1])-1]
			if rg.first-prev.last-1 <= 2*context {
				groups[n-1] = append(groups[n-1], rg)
				continue
			}
		}
		groups = append(groups, []region{rg})
	}
	return groups
}

func newHunk(lo, origCount, newLo, newCount int) (*diff.Hunk, error) {
	origStart, err := safecast.Conv[int32](lo + 1)
	if err != nil {
		return nil, err
	}
	newStart, err := safecast.Conv[int32](newLo + 1)
	if err != nil {
		return nil, err
	}
	oc, err := safecast.Conv[int32](origCount)
	if err != nil {
		return nil, err
	}
	nc, err := safecast.Conv[int32](newCount)
	if err != nil {
		return nil, err
	}
	return &diff.Hunk{
		OrigStartLine: origStart,
		OrigLines:     oc,
		NewStartLine:  newStart,
		NewLines:      nc,
	}, nil
}

// splitLines splits b after every '\n'; the last line may lack one.
func splitLines(b []byte) [][]byte {
	var out [][]byte
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			out = append(out, b)
			break
		}
		out = append(out, b[:i+1])
		b = b[i+1:]
	}
	return out
}
