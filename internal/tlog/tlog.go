// Package tlog is a leveled logger with per-tag thresholds on top
// of zerolog.
package tlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level is the severity of a record. Records below the threshold of
// their tag are dropped.
type Level int8

const (
	Verbose Level = iota
	Debug
	Info
	Warn
	Error
)

// Default is the threshold of tags without an explicit level.
const Default = Info

// Logger dispatches tagged records to a zerolog logger. A nil
// *Logger discards everything.
type Logger struct {
	zl zerolog.Logger

	mu     sync.Mutex
	levels map[string]Level
}

// New returns a logger writing JSON records to w.
func New(w io.Writer) *Logger {
	return &Logger{
		zl:     zerolog.New(w).With().Timestamp().Logger(),
		levels: make(map[string]Level),
	}
}

// NewConsole returns a logger writing human readable records to
// stderr.
func NewConsole() *Logger {
	return New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
}

// Discard returns a logger that drops all records.
func Discard() *Logger {
	return &Logger{zl: zerolog.Nop(), levels: make(map[string]Level)}
}

func (l Level) String() string {
	switch l {
	case Verbose:
		return "vrb"
	case Debug:
		return "dbg"
	case Info:
		return "inf"
	case Warn:
		return "war"
	case Error:
		return "err"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Verbose:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

// ParseLevel accepts both the short names ("dbg") and zerolog level
// names ("debug").
func ParseLevel(s string) (Level, error) {
	for l := Verbose; l <= Error; l++ {
		if s == l.String() {
			return l, nil
		}
	}
	zl, err := zerolog.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("tlog: %w", err)
	}
	switch {
	case zl <= zerolog.TraceLevel:
		return Verbose, nil
	case zl == zerolog.DebugLevel:
		return Debug, nil
	case zl == zerolog.InfoLevel:
		return Info, nil
	case zl == zerolog.WarnLevel:
		return Warn, nil
	default:
		return Error, nil
	}
}

// SetLevel sets the threshold for tag.
func (l *Logger) SetLevel(tag string, lvl Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[tag] = lvl
}

// SetDefaultLevel sets the threshold for tags without a level.
func (l *Logger) SetDefaultLevel(lvl Level) {
	l.SetLevel("", lvl)
}

// Enabled reports whether records of lvl are kept for tag.
func (l *Logger) Enabled(tag string, lvl Level) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	min, ok := l.levels[tag]
	if !ok {
		min, ok = l.levels[""]
		if !ok {
			min = Default
		}
	}
	return lvl >= min
}

func (l *Logger) Logf(lvl Level, tag, format string, args ...any) {
	if !l.Enabled(tag, lvl) {
		return
	}
	l.zl.WithLevel(lvl.zerolog()).Str("tag", tag).Msgf(format, args...)
}

func (l *Logger) Errorf(tag, format string, args ...any) {
	l.Logf(Error, tag, format, args...)
}

func (l *Logger) Warnf(tag, format string, args ...any) {
	l.Logf(Warn, tag, format, args...)
}

func (l *Logger) Infof(tag, format string, args ...any) {
	l.Logf(Info, tag, format, args...)
}

func (l *Logger) Debugf(tag, format string, args ...any) {
	l.Logf(Debug, tag, format, args...)
}

func (l *Logger) Verbosef(tag, format string, args ...any) {
	l.Logf(Verbose, tag, format, args...)
}
