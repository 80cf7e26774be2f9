package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/work/src")
	cases := []struct {
		path string
		want bool
	}{
		{"/work/src/backend/a.c", true},
		{"/work/src", true},
		{"/work/srcfoo/a.c", false},
		{"/work/include/a.h", false},
		{"/usr/include/stdio.h", false},
	}
	for _, tc := range cases {
		if got := Within(filepath.FromSlash(tc.path), root); got != tc.want {
			t.Errorf("Within(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
	if Within("/work/src/a.c", "") {
		t.Errorf("empty root must not contain anything")
	}
}

func TestCanonicalResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(real, "a.c"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	viaLink, err := Canonical(filepath.Join(link, "sub", "..", "a.c"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	direct, err := Canonical(filepath.Join(real, "a.c"))
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if viaLink != direct {
		t.Fatalf("expected %q == %q", viaLink, direct)
	}
}
