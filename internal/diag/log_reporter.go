package diag

import (
	"io"
	"strings"
	"sync"

	"github.com/phuslu/log"
)

// LogOptions configures the structured logger behind LogReporter.
type LogOptions struct {
	Level  string // debug|info|warn|error
	Format string // auto|console|json
	Color  bool
	TTY    bool // whether Writer is a terminal; used by Format "auto"
	Writer io.Writer
}

// NewLogger builds a phuslu logger: human-readable console lines on a
// terminal, JSON lines otherwise.
func NewLogger(opts LogOptions) *log.Logger {
	var w log.Writer
	switch {
	case opts.Format == "console", (opts.Format == "" || opts.Format == "auto") && opts.TTY:
		w = &log.ConsoleWriter{
			ColorOutput: opts.Color,
			Writer:      opts.Writer,
		}
	default:
		w = &log.IOWriter{Writer: opts.Writer}
	}
	return &log.Logger{
		Level:  parseLogLevel(opts.Level),
		Writer: w,
	}
}

func parseLogLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// LogReporter writes diagnostics as structured log records. Progress,
// per-file success, skipped declarations and front-end notes (partial
// trees, unresolved includes) go out at debug level: the default output
// carries only what needs attention.
type LogReporter struct {
	mu     sync.Mutex
	logger *log.Logger
	static []Field
}

// NewLogReporter logs through logger. static fields (a run id, say) are
// added to every record.
func NewLogReporter(logger *log.Logger, static ...Field) *LogReporter {
	return &LogReporter{logger: logger, static: static}
}

func (r *LogReporter) Report(d Diagnostic) {
	if r == nil || r.logger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var e *log.Entry
	switch {
	case d.Severity >= SevError:
		e = r.logger.Error()
	case d.Severity == SevWarning:
		e = r.logger.Warn()
	case isDebugCode(d.Code):
		e = r.logger.Debug()
	default:
		e = r.logger.Info()
	}
	if e == nil {
		return
	}
	e = e.Str("code", d.Code.ID())
	if loc := d.Location(); loc != "" {
		e = e.Str("loc", loc)
	}
	for _, f := range d.Fields {
		e = e.Str(f.Key, f.Value)
	}
	for _, f := range r.static {
		e = e.Str(f.Key, f.Value)
	}
	e.Msg(d.Message)
}

func isDebugCode(c Code) bool {
	switch c {
	case Progress, SkippedDecl, FrontInfo, IncludeNotFound, FileRewritten:
		return true
	}
	return false
}
