package cfront

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"

	"tlsify/internal/source"
)

// TreeSitter is the FrontEnd backed by the tree-sitter C grammar. The
// grammar is error tolerant, so a file with unknown macros still yields a
// usable tree. Every file is read and parsed once per instance: headers
// shared by several units of one shard are not parsed again.
type TreeSitter struct {
	parser   *sitter.Parser
	files    map[string]*parsedFile
	failed   map[string]error
	resolved map[string]string // include lookup key -> canonical path ("" = not found)
}

type parsedFile struct {
	path     string
	content  []byte
	tree     *sitter.Tree
	items    []*sitter.Node // file-scope declarations, definitions and typedefs
	includes []include
	errors   int
}

type include struct {
	spec   string
	system bool
}

// NewTreeSitter loads the C grammar and creates a parser.
func NewTreeSitter() (*TreeSitter, error) {
	lang := c.GetLanguage()
	if lang == nil {
		return nil, ErrFrontEndUnavailable
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	return &TreeSitter{
		parser:   parser,
		files:    make(map[string]*parsedFile),
		failed:   make(map[string]error),
		resolved: make(map[string]string),
	}, nil
}

// Close releases all cached trees and the parser.
func (ts *TreeSitter) Close() {
	if ts == nil || ts.parser == nil {
		return
	}
	for _, f := range ts.files {
		f.tree.Close()
	}
	ts.files = nil
	ts.parser.Close()
	ts.parser = nil
}

// Parse reads path and every header it reaches through #include and builds
// the unit's declaration tree.
func (ts *TreeSitter) Parse(ctx context.Context, path string, opts ParseOptions) (*Unit, error) {
	if ts.parser == nil {
		return nil, ErrFrontEndUnavailable
	}
	main, err := source.Canonical(path)
	if err != nil {
		return nil, err
	}

	unit := &Unit{Path: main}
	var order []*parsedFile
	visited := make(map[string]bool)
	unresolved := make(map[string]bool)

	var visit func(p string) error
	visit = func(p string) error {
		visited[p] = true
		pf, err := ts.load(ctx, p)
		if err != nil {
			return err
		}
		order = append(order, pf)
		for _, inc := range pf.includes {
			target := ts.resolve(inc, filepath.Dir(p), opts.IncludePaths)
			if target == "" {
				if !unresolved[inc.spec] {
					unresolved[inc.spec] = true
					unit.Unresolved = append(unit.Unresolved, inc.spec)
				}
				continue
			}
			if visited[target] {
				continue
			}
			if err := visit(target); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// нечитаемый заголовок считаем неразрешённым
				if !unresolved[inc.spec] {
					unresolved[inc.spec] = true
					unit.Unresolved = append(unit.Unresolved, inc.spec)
				}
			}
		}
		return nil
	}
	if err := visit(main); err != nil {
		return nil, err
	}

	unit.Sources = make(map[string][]byte, len(order))
	for _, pf := range order {
		unit.Files = append(unit.Files, pf.path)
		unit.Sources[pf.path] = pf.content
		unit.SyntaxErrors += pf.errors
	}
	if unit.SyntaxErrors > 0 && !opts.KeepGoing {
		return nil, fmt.Errorf("%w in %s: %d error node(s)", ErrSyntax, main, unit.SyntaxErrors)
	}

	conv := newConverter(order, opts)
	unit.Root = conv.unit(order)
	return unit, nil
}

func (ts *TreeSitter) load(ctx context.Context, path string) (*parsedFile, error) {
	if pf, ok := ts.files[path]; ok {
		return pf, nil
	}
	if err, ok := ts.failed[path]; ok {
		return nil, err
	}

	// #nosec G304 -- source and include paths are given by the user
	content, err := os.ReadFile(path)
	if err != nil {
		ts.failed[path] = err
		return nil, err
	}
	if _, err := safecast.Conv[uint32](len(content)); err != nil {
		err = fmt.Errorf("%s: file too large: %w", path, err)
		ts.failed[path] = err
		return nil, err
	}

	tree, err := ts.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	pf := &parsedFile{path: path, content: content, tree: tree}
	root := tree.RootNode()
	pf.collect(root)
	if root.HasError() {
		pf.errors = countErrors(root)
	}
	ts.files[path] = pf
	return pf, nil
}

// collect gathers file-scope items and includes. Preprocessor conditionals
// and error nodes are transparent: every branch is visited.
func (pf *parsedFile) collect(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch == nil {
			continue
		}
		switch ch.Type() {
		case "declaration", "function_definition", "type_definition":
			pf.items = append(pf.items, ch)
		case "preproc_include":
			if inc, ok := pf.include(ch); ok {
				pf.includes = append(pf.includes, inc)
			}
		case "preproc_if", "preproc_ifdef", "preproc_else", "preproc_elif", "preproc_elifdef", "ERROR":
			pf.collect(ch)
		}
	}
}

func (pf *parsedFile) include(n *sitter.Node) (include, bool) {
	p := n.ChildByFieldName("path")
	if p == nil {
		return include{}, false
	}
	spec := strings.TrimSpace(p.Content(pf.content))
	switch {
	case strings.HasPrefix(spec, "<") && strings.HasSuffix(spec, ">"):
		return include{spec: spec[1 : len(spec)-1], system: true}, true
	case strings.HasPrefix(spec, `"`) && strings.HasSuffix(spec, `"`) && len(spec) >= 2:
		return include{spec: spec[1 : len(spec)-1]}, true
	}
	// #include MACRO: not expanded
	return include{}, false
}

func countErrors(n *sitter.Node) int {
	count := 0
	if n.Type() == "ERROR" || n.IsMissing() {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if ch := n.Child(i); ch != nil {
			count += countErrors(ch)
		}
	}
	return count
}

// resolve finds the file an include names. Quoted includes search the
// including file's directory first, then the include paths; angle includes
// search only the include paths.
func (ts *TreeSitter) resolve(inc include, dir string, includePaths []string) string {
	key := inc.spec + "\x00" + strings.Join(includePaths, "\x00")
	if !inc.system {
		key = dir + "\x00" + key
	}
	if target, ok := ts.resolved[key]; ok {
		return target
	}

	var target string
	if filepath.IsAbs(inc.spec) {
		target = existingFile(inc.spec)
	} else {
		dirs := includePaths
		if !inc.system {
			dirs = append([]string{dir}, includePaths...)
		}
		for _, d := range dirs {
			if target = existingFile(filepath.Join(d, inc.spec)); target != "" {
				break
			}
		}
	}
	ts.resolved[key] = target
	return target
}

func existingFile(p string) string {
	st, err := os.Stat(p)
	if err != nil || st.IsDir() {
		return ""
	}
	canon, err := source.Canonical(p)
	if err != nil {
		return ""
	}
	return canon
}
