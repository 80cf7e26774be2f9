package cfront

import (
	"fmt"
	"strings"
)

// Kind is the syntactic kind of a Node.
type Kind uint8

const (
	KindTranslationUnit Kind = iota + 1
	KindVar
	KindFunction     // definition with a body
	KindFunctionDecl // prototype
	KindTypedef
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindTranslationUnit:
		return "translation_unit"
	case KindVar:
		return "var"
	case KindFunction:
		return "function"
	case KindFunctionDecl:
		return "function_decl"
	case KindTypedef:
		return "typedef"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// Range is a byte range in one physical file (canonical path).
type Range struct {
	File  string
	Start uint32
	End   uint32
}

func (r Range) String() string {
	return fmt.Sprintf("%s:[%d,%d)", r.File, r.Start, r.End)
}

// Node is one declaration-level entity.
type Node struct {
	Kind    Kind
	Name    string
	Storage string // static, extern, auto, register or ""
	// Specifiers are the identifier-like tokens preceding the first
	// declarator, outside any struct/union/enum body.
	Specifiers  []string
	Type        *Type
	Range       Range
	ThreadLocal bool
	Children    []*Node
}

// Walk visits n and its descendants depth-first. depth is 0 for n.
// Returning false from fn skips the children of that node.
func Walk(n *Node, fn func(n *Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) bool) {
	if n == nil || !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}

// TypeKind classifies a Type.
type TypeKind uint8

const (
	TypeScalar TypeKind = iota + 1 // anything that is not a derived type
	TypePointer
	TypeArray
	TypeFunction
)

// Type is a declared type unwound from its declarator. Elem is the pointee,
// array element or function return type.
type Type struct {
	Kind     TypeKind
	Const    bool
	Sized    bool // arrays only: size present
	Elem     *Type
	Spelling string // scalar only: type specifier text
}

// IsConst reports whether the type is const-qualified, or is an array
// (of arrays) whose element type is.
func (t *Type) IsConst() bool {
	if t == nil {
		return false
	}
	if t.Const {
		return true
	}
	if t.Kind == TypeArray {
		return t.Elem.IsConst()
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var b strings.Builder
	if t.Const {
		b.WriteString("const ")
	}
	switch t.Kind {
	case TypeScalar:
		b.WriteString(t.Spelling)
	case TypePointer:
		b.WriteString("pointer to " + t.Elem.String())
	case TypeArray:
		if t.Sized {
			b.WriteString("array of " + t.Elem.String())
		} else {
			b.WriteString("array[] of " + t.Elem.String())
		}
	case TypeFunction:
		b.WriteString("function returning " + t.Elem.String())
	}
	return b.String()
}

// withConst returns a copy of t that is const. Qualifying an array
// qualifies its elements, as in C.
func withConst(t *Type) *Type {
	if t == nil {
		return nil
	}
	cp := *t
	if cp.Kind == TypeArray {
		cp.Elem = withConst(cp.Elem)
		return &cp
	}
	cp.Const = true
	return &cp
}
