// Package xlog is a thin, leveled wrapper over the standard library's
// log.Logger. The driver has no use for structured/machine-parsed logs —
// every call site here is a human-facing diagnostic — so unlike the
// config and CLI layers (which reach for gopkg.in/yaml.v3 and
// golang.org/x/text/message because those pull real weight) this stays
// on the standard library on purpose.
package xlog

import (
	"io"
	"log"
	"os"
)

// Level orders log verbosity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "???"
	}
}

// Logger prefixes every line with a level tag and delegates to a
// wrapped *log.Logger.
type Logger struct {
	base *log.Logger
}

// New wraps base. A nil base logs to os.Stderr with no prefix and the
// standard date/time flags.
func New(base *log.Logger) *Logger {
	if base == nil {
		base = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Logger{base: base}
}

// Discard returns a Logger that drops everything, for tests that don't
// care about log output.
func Discard() *Logger {
	return &Logger{base: log.New(io.Discard, "", 0)}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.base.Printf("["+level.String()+"] "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(Error, format, args...) }
