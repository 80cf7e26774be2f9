package diag

import (
	"fmt"

	"tlsify/internal/source"
)

// Field is one structured key/value attached to a diagnostic. Fields keep
// insertion order so rendered output is stable.
type Field struct {
	Key   string
	Value string
}

// Diagnostic is a single leveled finding. It is plain data: workers encode
// it into their response and the orchestrator replays it locally.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Path     string
	Offset   uint32
	Pos      source.LineCol // zero when unknown
	Fields   []Field
}

// Location renders path:line:col when the position is known, otherwise
// path@offset. Diagnostics without a path have no location.
func (d Diagnostic) Location() string {
	switch {
	case d.Path == "":
		return ""
	case d.Pos.Line > 0:
		return fmt.Sprintf("%s:%d:%d", d.Path, d.Pos.Line, d.Pos.Col)
	default:
		return fmt.Sprintf("%s@%d", d.Path, d.Offset)
	}
}

// Field returns the value stored under key.
func (d Diagnostic) Field(key string) (string, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}
