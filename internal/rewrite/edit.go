// Package rewrite merges edit proposals from every worker into one plan and
// applies that plan to the files on disk.
package rewrite

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingEdits is returned by Aggregate when proposals disagree.
	ErrConflictingEdits = errors.New("conflicting edits")
	// ErrEditOutOfRange reports an edit that reaches past the end of the file.
	ErrEditOutOfRange = errors.New("edit out of range")
	// ErrOverlappingEdits reports unsorted or overlapping edits passed to Apply.
	ErrOverlappingEdits = errors.New("overlapping edits")
)

// Edit replaces Length bytes at Offset with Text. Offsets are bytes into the
// original file content.
type Edit struct {
	Offset uint32
	Length uint32
	Text   string
}

// End is the first byte after the replaced range.
func (e Edit) End() uint32 {
	return e.Offset + e.Length
}

func (e Edit) String() string {
	if e.Length == 0 {
		return fmt.Sprintf("insert %q at %d", e.Text, e.Offset)
	}
	return fmt.Sprintf("replace [%d,%d) with %q", e.Offset, e.End(), e.Text)
}

// Origin names the translation unit and declaration that proposed an edit.
// It is carried for diagnostics only and never affects grouping.
type Origin struct {
	Unit string
	Name string
}

func (o Origin) String() string {
	switch {
	case o.Unit == "" && o.Name == "":
		return "?"
	case o.Unit == "":
		return o.Name
	default:
		return o.Unit + ":" + o.Name
	}
}

// Record is one raw proposal: a file plus an edit plus where it came from.
// It is the unit workers send back to the orchestrator.
type Record struct {
	Path   string
	Offset uint32
	Length uint32
	Text   string
	Unit   string
	Name   string
}

func (r Record) Edit() Edit {
	return Edit{Offset: r.Offset, Length: r.Length, Text: r.Text}
}

func (r Record) Origin() Origin {
	return Origin{Unit: r.Unit, Name: r.Name}
}
