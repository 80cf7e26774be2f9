// Package diag defines the diagnostic model shared by every stage of the
// rewrite pipeline.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity: Info (progress, per-file success), Warning (recoverable
//     oddities) or Error (anomalies, conflicts, failures).
//   - Code: compact numeric identifier with a stable string ID (see codes.go).
//   - Message: short human-oriented text.
//   - Path, Offset, Pos: where the finding lives. Pos is filled in when the
//     producer can resolve a line and column.
//   - Fields: ordered structured key/value pairs (declaration name,
//     translation unit, underlying error).
//
// Diagnostics are plain data so a worker process can ship them back to the
// orchestrator inside its response.
//
// # Emitting diagnostics
//
// Components receive a Reporter in their entry point; nothing here installs
// process-wide state. ReportBuilder (via ReportError/ReportWarning/ReportInfo)
// chains At/Str/Err before Emit. Sinks:
//
//   - BagReporter collects into a Bag (worker responses, tests).
//   - DedupReporter drops repeats produced by shared headers.
//   - MultiReporter fans out.
//   - CountingReporter tracks per-severity totals for the exit summary.
//   - LogReporter writes through github.com/phuslu/log.
//
// All sinks are safe for concurrent use.
package diag
