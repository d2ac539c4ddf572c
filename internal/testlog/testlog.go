// Package testlog provides the line-oriented logger the concurrency
// scenario tests use to narrate what they're doing (goroutine counts,
// iteration counts) without reaching for fmt.Println in test output.
//
// Production code in this module never logs anything: per the package
// contract, a Cell, Sequence or Map operation either succeeds or reports
// failure through its return value, and there is nothing else worth
// narrating outside of tests.
package testlog

import (
	"fmt"
	"testing"
)

// Level is a log severity, ordered low to high.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	default:
		return "UNKNOWN"
	}
}

// Logger is a minimal leveled logger sitting on top of testing.TB.Logf, so
// a scenario test's narration is only shown by `go test -v` or on failure,
// the same way t.Log already behaves.
type Logger struct {
	tb    testing.TB
	level Level
}

// New returns a Logger that writes to tb at or above level.
func New(tb testing.TB, level Level) *Logger {
	return &Logger{tb: tb, level: level}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.tb.Helper()
	l.tb.Logf("%s: %s", level, fmt.Sprintf(format, args...))
}
