package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetLoadKeepsBytesVerbatim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crlf.c")
	content := []byte("\xEF\xBB\xBFstatic int x;\r\nint y;\r\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != string(content) {
		t.Fatalf("content was modified: %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileHasCRLF == 0 {
		t.Fatalf("expected BOM and CRLF flags, got %b", f.Flags)
	}
	if got := f.Line(2); got != "int y;" {
		t.Fatalf("Line(2) = %q", got)
	}
	if got := f.Line(3); got != "" {
		t.Fatalf("Line(3) = %q", got)
	}
	if got := f.Line(4); got != "" {
		t.Fatalf("Line(4) = %q", got)
	}
}

func TestFileSetAddShadowsPath(t *testing.T) {
	fs := NewFileSet()
	id1 := fs.Add("a.c", []byte("one"), 0)
	id2 := fs.Add("a.c", []byte("two"), 0)
	if id1 == id2 {
		t.Fatalf("expected distinct ids")
	}
	f, ok := fs.GetByPath("./a.c")
	if !ok {
		t.Fatalf("GetByPath failed")
	}
	if string(f.Content) != "two" {
		t.Fatalf("expected latest content, got %q", f.Content)
	}
}

func TestPosition(t *testing.T) {
	fs := NewFileSet()
	id := fs.Add("p.c", []byte("ab\ncd\n\nef"), 0)
	f := fs.Get(id)

	cases := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{Line: 1, Col: 1}},
		{2, LineCol{Line: 1, Col: 3}},
		{3, LineCol{Line: 2, Col: 1}},
		{4, LineCol{Line: 2, Col: 2}},
		{6, LineCol{Line: 3, Col: 1}},
		{7, LineCol{Line: 4, Col: 1}},
		{8, LineCol{Line: 4, Col: 2}},
	}
	for _, tc := range cases {
		if got := f.Position(tc.off); got != tc.want {
			t.Errorf("Position(%d) = %+v, want %+v", tc.off, got, tc.want)
		}
	}
	if got := f.Line(4); got != "ef" {
		t.Fatalf("Line(4) = %q", got)
	}
}

func TestLocateLoadsLazily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazy.h")
	if err := os.WriteFile(path, []byte("int a;\nint b;\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs := NewFileSet()
	pos, err := fs.Locate(path, 11)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if pos.Line != 2 || pos.Col != 5 {
		t.Fatalf("Locate = %+v", pos)
	}
	if fs.Len() != 1 {
		t.Fatalf("expected one loaded file, got %d", fs.Len())
	}
	if _, err := fs.Locate(filepath.Join(dir, "missing.h"), 0); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRelPath(t *testing.T) {
	base := filepath.FromSlash("/work/src")
	if got := RelPath(filepath.FromSlash("/work/src/backend/a.c"), base); got != "backend/a.c" {
		t.Fatalf("RelPath inside = %q", got)
	}
	outside := filepath.FromSlash("/usr/include/stdio.h")
	if got := RelPath(outside, base); got != outside {
		t.Fatalf("RelPath outside = %q", got)
	}
}
