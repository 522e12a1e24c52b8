// Package telemetry provides the gateway's leveled logger and Prometheus
// metrics. The logger is an RFC5424-flavored thin level gate in front
// of the standard library's log.Logger, rather than a structured
// third-party logging library: a handful of Debug/Info/Warn/Error
// wrappers cover everything this gateway logs, so stdlib log stays the
// implementation.
package telemetry

import (
	"io"
	"log"
	"os"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger gates a standard log.Logger by level, generalizing clog.Clog's
// enable/disable gate into a four-level threshold.
type Logger struct {
	level Level
	out   *log.Logger
}

// NewLogger creates a Logger writing to w with the given prefix at or
// above minLevel.
func NewLogger(w io.Writer, prefix string, minLevel Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{level: minLevel, out: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)}
}

func (l *Logger) log(level Level, tag string, format string, v ...any) {
	if l == nil || l.out == nil || level < l.level {
		return
	}
	l.out.Printf("["+tag+"] "+format, v...)
}

// Std exposes the underlying standard logger for collaborators that
// predate this package's level gate (e.g. internal/store's bbolt
// queue), constructed before telemetry existed as a concern to wrap.
func (l *Logger) Std() *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l.out
}

func (l *Logger) Debugf(format string, v ...any) { l.log(LevelDebug, "D", format, v...) }
func (l *Logger) Infof(format string, v ...any)  { l.log(LevelInfo, "I", format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { l.log(LevelWarn, "W", format, v...) }
func (l *Logger) Errorf(format string, v ...any) { l.log(LevelError, "E", format, v...) }
