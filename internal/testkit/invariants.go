// Package testkit holds structural checks shared by front-end and analyzer
// tests.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"tlsify/internal/cfront"
)

// CheckUnitInvariants runs a minimal set of invariants on a parsed unit:
// 1) every node range names a file of the unit and lies within its content
// 2) a child in the same file as its parent lies within the parent range
// 3) variables and functions are named and typed
func CheckUnitInvariants(u *cfront.Unit) error {
	if u == nil || u.Root == nil {
		return fmt.Errorf("nil unit or root")
	}
	if u.Root.Kind != cfront.KindTranslationUnit {
		return fmt.Errorf("root kind is %s", u.Root.Kind)
	}
	if len(u.Files) == 0 || u.Files[0] != u.Path {
		return fmt.Errorf("main file must come first in Files: %v", u.Files)
	}
	for _, f := range u.Files {
		if _, ok := u.Sources[f]; !ok {
			return fmt.Errorf("no source for %s", f)
		}
	}
	return checkNode(u, u.Root, nil)
}

func checkNode(u *cfront.Unit, n, parent *cfront.Node) error {
	r := n.Range
	content, ok := u.Sources[r.File]
	if !ok {
		return fmt.Errorf("%s %q: range in unknown file %q", n.Kind, n.Name, r.File)
	}
	size, err := safecast.Conv[uint32](len(content))
	if err != nil {
		return fmt.Errorf("content length overflow: %w", err)
	}
	if r.Start > r.End || r.End > size {
		return fmt.Errorf("%s %q: range %s outside [0,%d]", n.Kind, n.Name, r, size)
	}
	if parent != nil && parent.Kind != cfront.KindTranslationUnit && parent.Range.File == r.File {
		if r.Start < parent.Range.Start || r.End > parent.Range.End {
			return fmt.Errorf("%s %q: range %s escapes parent %s", n.Kind, n.Name, r, parent.Range)
		}
	}
	switch n.Kind {
	case cfront.KindVar, cfront.KindFunction, cfront.KindFunctionDecl:
		if n.Name == "" {
			return fmt.Errorf("%s at %s has no name", n.Kind, r)
		}
		if n.Type == nil {
			return fmt.Errorf("%s %q has no type", n.Kind, n.Name)
		}
	}
	for _, ch := range n.Children {
		if ch == nil {
			return fmt.Errorf("%s %q: nil child", n.Kind, n.Name)
		}
		if err := checkNode(u, ch, n); err != nil {
			return err
		}
	}
	return nil
}
