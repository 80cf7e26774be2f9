package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"fortio.org/safecast"
)

// FileSet manages a collection of source files keyed by canonical path.
//
// Content is stored exactly as read from disk: the rewrite engine computes
// byte offsets against it and later splices edits into the same bytes, so
// no CRLF or BOM normalisation happens here.
type FileSet struct {
	files   []File
	index   map[string]FileID // canonical path -> id
	baseDir string            // base for relative display paths
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files: make([]File, 0),
		index: make(map[string]FileID),
	}
}

// NewFileSetWithBase creates a FileSet that renders paths relative to baseDir.
func NewFileSetWithBase(baseDir string) *FileSet {
	fs := NewFileSet()
	fs.baseDir = baseDir
	return fs
}

// BaseDir returns the base directory, defaulting to the working directory.
func (fileSet *FileSet) BaseDir() string {
	if fileSet.baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return fileSet.baseDir
}

// Len reports how many files were added.
func (fileSet *FileSet) Len() int {
	return len(fileSet.files)
}

// Add stores content under path, indexes its lines and returns a new FileID.
// A later Add for the same path shadows the earlier one in path lookups.
func (fileSet *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	lineIdx := buildLineIndex(content)
	normalizedPath := normalizePath(path)

	lenFiles, err := safecast.Conv[uint32](len(fileSet.files))
	if err != nil {
		panic(fmt.Errorf("len files overflow: %w", err))
	}
	id := FileID(lenFiles)
	fileSet.files = append(fileSet.files, File{
		ID:      id,
		Path:    normalizedPath,
		Content: content,
		LineIdx: lineIdx,
		Flags:   flags,
	})
	fileSet.index[normalizedPath] = id
	return id
}

// Load reads a file from disk verbatim and calls Add.
func (fileSet *FileSet) Load(path string) (FileID, error) {
	// #nosec G304 -- path is provided by the caller
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	flags := FileFlags(0)
	if hasBOM(content) {
		flags |= FileHadBOM
	}
	if bytes.Contains(content, []byte("\r\n")) {
		flags |= FileHasCRLF
	}
	return fileSet.Add(path, content, flags), nil
}

// Ensure returns the file for path, loading it on first use.
func (fileSet *FileSet) Ensure(path string) (*File, error) {
	if f, ok := fileSet.GetByPath(path); ok {
		return f, nil
	}
	id, err := fileSet.Load(path)
	if err != nil {
		return nil, err
	}
	return fileSet.Get(id), nil
}

// Get returns the file metadata for the given ID.
func (fileSet *FileSet) Get(id FileID) *File {
	return &fileSet.files[id]
}

// GetByPath returns the latest file added under path.
func (fileSet *FileSet) GetByPath(path string) (*File, bool) {
	if id, ok := fileSet.index[normalizePath(path)]; ok {
		return &fileSet.files[id], true
	}
	return nil, false
}

// Locate resolves a byte offset in path, loading the file if needed.
func (fileSet *FileSet) Locate(path string, offset uint32) (LineCol, error) {
	f, err := fileSet.Ensure(path)
	if err != nil {
		return LineCol{}, err
	}
	return f.Position(offset), nil
}

// Position converts a byte offset into a line/column pair.
func (f *File) Position(offset uint32) LineCol {
	return toLineCol(f.LineIdx, offset)
}

// Size returns the content length as uint32.
func (f *File) Size() uint32 {
	n, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("content length overflow: %w", err))
	}
	return n
}

// Line returns the 1-based line n without its terminator, "" when out of
// range.
func (f *File) Line(n uint32) string {
	if n == 0 || int(n) > len(f.LineIdx)+1 {
		return ""
	}
	var start uint32
	if n > 1 {
		start = f.LineIdx[n-2] + 1
	}
	end := f.Size()
	if int(n) <= len(f.LineIdx) {
		end = f.LineIdx[n-1]
	}
	if start > end {
		return ""
	}
	return string(bytes.TrimSuffix(f.Content[start:end], []byte{'\r'}))
}

// RelPath renders path relative to baseDir (the working directory when
// empty). Paths outside baseDir are returned unchanged.
func RelPath(path, baseDir string) string {
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		}
	}
	if rel, err := filepath.Rel(baseDir, path); err == nil && !escapesRoot(rel) {
		return filepath.ToSlash(rel)
	}
	return path
}
