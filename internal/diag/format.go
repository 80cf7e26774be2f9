package diag

import (
	"fmt"
	"sort"
	"strings"
)

// FormatShort renders diagnostics one per line as
// "<severity> <code> <location> <message>", sorted by location. The output
// is stable and used for summaries and golden comparisons.
func FormatShort(diags []Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}
	sorted := make([]Diagnostic, len(diags))
	copy(sorted, diags)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i], sorted[j]
		if di.Path != dj.Path {
			return di.Path < dj.Path
		}
		if di.Offset != dj.Offset {
			return di.Offset < dj.Offset
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		if di.Code != dj.Code {
			return di.Code < dj.Code
		}
		return di.Message < dj.Message
	})

	var b strings.Builder
	for i, d := range sorted {
		loc := d.Location()
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(&b, "%s %s %s %s", severityLabel(d.Severity), d.Code.ID(), loc, sanitizeMessage(d.Message))
		if i < len(sorted)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
