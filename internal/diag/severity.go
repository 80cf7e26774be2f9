package diag

import "strings"

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevInfo is for progress and per-file success.
	SevInfo Severity = iota
	// SevWarning is for recoverable oddities.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseSeverity maps a log-level name onto a severity. Unknown names fall
// back to SevInfo; "debug" is accepted and also maps to SevInfo.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn", "warning":
		return SevWarning
	case "error":
		return SevError
	default:
		return SevInfo
	}
}
