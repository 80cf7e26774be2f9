package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const configFileName = "tlsify.toml"

type projectFile struct {
	Path   string
	Root   string
	Config projectConfig
	meta   toml.MetaData
}

type projectConfig struct {
	Rewrite rewriteConfig `toml:"rewrite"`
	Log     logConfig     `toml:"log"`
}

type rewriteConfig struct {
	SourceRoot   string   `toml:"source_root"`
	Include      []string `toml:"include"`
	Sources      []string `toml:"sources"`
	Jobs         int      `toml:"jobs"`
	Keyword      string   `toml:"keyword"`
	PrefixMacros []string `toml:"prefix_macros"`
	KeepGoing    bool     `toml:"keep_going"`
	Strict       bool     `toml:"strict"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadProject loads an explicit config file, or discovers one upwards from
// startDir when explicit is empty. A missing discovered file is not an error.
func loadProject(explicit, startDir string) (*projectFile, error) {
	path := explicit
	if path == "" {
		found, ok, err := findConfig(startDir)
		if err != nil || !ok {
			return nil, err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg, meta, err := loadProjectConfig(abs)
	if err != nil {
		return nil, err
	}
	return &projectFile{Path: abs, Root: filepath.Dir(abs), Config: cfg, meta: meta}, nil
}

func loadProjectConfig(path string) (projectConfig, toml.MetaData, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, meta, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return projectConfig{}, meta, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("rewrite", "jobs") && cfg.Rewrite.Jobs < 0 {
		return projectConfig{}, meta, fmt.Errorf("%s: [rewrite].jobs must be >= 0", path)
	}
	if meta.IsDefined("rewrite", "keyword") && strings.TrimSpace(cfg.Rewrite.Keyword) == "" {
		return projectConfig{}, meta, fmt.Errorf("%s: [rewrite].keyword must not be empty", path)
	}
	if meta.IsDefined("rewrite", "source_root") && strings.TrimSpace(cfg.Rewrite.SourceRoot) == "" {
		return projectConfig{}, meta, fmt.Errorf("%s: [rewrite].source_root must not be empty", path)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return projectConfig{}, meta, fmt.Errorf("%s: invalid [log].level %q", path, cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "auto", "console", "json":
	default:
		return projectConfig{}, meta, fmt.Errorf("%s: invalid [log].format %q", path, cfg.Log.Format)
	}
	return cfg, meta, nil
}

// has reports whether key was set in the file.
func (p *projectFile) has(key ...string) bool {
	return p != nil && p.meta.IsDefined(key...)
}

// resolve makes a path from the file relative to the file's directory.
func (p *projectFile) resolve(path string) string {
	if p == nil || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, filepath.FromSlash(path))
}

func (p *projectFile) resolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		out = append(out, p.resolve(path))
	}
	return out
}
