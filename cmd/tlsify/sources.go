package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tlsify/internal/source"
)

// expandSources turns files, directories (walked for *.c) and glob patterns
// into a de-duplicated list of canonical paths, keeping first-seen order.
func expandSources(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) error {
		canon, err := source.Canonical(p)
		if err != nil {
			return err
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
		return nil
	}

	for _, pattern := range patterns {
		matches := []string{pattern}
		if strings.ContainsAny(pattern, "*?[") {
			var err error
			matches, err = filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("pattern %q matched no files", pattern)
			}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !info.IsDir() {
				if err := add(m); err != nil {
					return nil, err
				}
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if path != m && strings.HasPrefix(d.Name(), ".") {
						return filepath.SkipDir
					}
					return nil
				}
				if filepath.Ext(path) == ".c" {
					return add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no source files given")
	}
	return out, nil
}

// absPaths makes every path absolute without requiring it to exist.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
