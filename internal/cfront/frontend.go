// Package cfront is the C front end used by the analyzer: it turns one
// translation unit into a small declaration tree with storage classes,
// declared types and byte ranges in the physical files.
package cfront

import (
	"context"
	"errors"
)

var (
	// ErrFrontEndUnavailable means the C grammar could not be loaded. It is
	// fatal for the whole batch.
	ErrFrontEndUnavailable = errors.New("c front end unavailable")
	// ErrSyntax is returned when KeepGoing is off and the unit has syntax errors.
	ErrSyntax = errors.New("syntax errors")
)

// ParseOptions control one Parse call.
type ParseOptions struct {
	IncludePaths []string
	// KeepGoing analyses partial trees instead of failing on syntax errors.
	KeepGoing bool
	// ThreadLocalKeywords are recognised in addition to __thread,
	// _Thread_local and thread_local.
	ThreadLocalKeywords []string
	// SpecifierMacros are macro names that may appear among declaration
	// specifiers (NON_EXEC_STATIC and similar).
	SpecifierMacros []string
}

// FrontEnd parses translation units. Implementations are not safe for
// concurrent use; a worker owns exactly one.
type FrontEnd interface {
	Parse(ctx context.Context, path string, opts ParseOptions) (*Unit, error)
	Close()
}

// Unit is one parsed translation unit.
type Unit struct {
	Path string
	// Root has kind KindTranslationUnit. Its children are the file-scope
	// items of the main file followed, in include order, by those of every
	// header it reaches.
	Root *Node
	// Files lists every physical file read, main file first.
	Files []string
	// Sources holds the verbatim content of every file in Files. Node
	// ranges index into these bytes. The slices are shared; do not modify.
	Sources map[string][]byte
	// Unresolved lists include specs that matched no file.
	Unresolved []string
	// SyntaxErrors counts error nodes across all files of the unit.
	SyntaxErrors int
}
