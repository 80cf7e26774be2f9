package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32
	// FileFlags encodes metadata about a source file.
	FileFlags uint8
)

const (
	// FileHadBOM marks files starting with a UTF-8 byte order mark. The mark is
	// kept in Content: offsets must stay valid against the bytes on disk.
	FileHadBOM FileFlags = 1 << iota
	// FileHasCRLF marks files using \r\n line endings (kept verbatim as well).
	FileHasCRLF
)

// File is one source file as read from disk.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32 // offsets of every '\n'
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based, in bytes
}
