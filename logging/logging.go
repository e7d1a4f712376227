// Package logging provides the levelled logger used across silopt. It
// wraps logrus with a compact formatter that prefixes each line with a
// symbol for its kind.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Level represents different levels of logging detail
type Level int

const (
	LevelSilent Level = iota
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel parses a level name: silent, info, debug or trace.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "quiet", "off":
		return LevelSilent, nil
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelSilent:
		return "silent"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "info"
	}
}

const (
	symbolField = "symbol"
	prefixField = "prefix"
)

// Logger provides structured logging for optimizer operations
type Logger struct {
	level Level
	entry *logrus.Entry
}

type loggerKey struct{}

// New creates a new logger with the specified level and output
func New(level Level, writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	base := logrus.New()
	base.SetFormatter(&formatter{})
	switch level {
	case LevelSilent:
		base.SetOutput(io.Discard)
		base.SetLevel(logrus.PanicLevel)
	case LevelDebug:
		base.SetOutput(writer)
		base.SetLevel(logrus.DebugLevel)
	case LevelTrace:
		base.SetOutput(writer)
		base.SetLevel(logrus.TraceLevel)
	default:
		base.SetOutput(writer)
		base.SetLevel(logrus.InfoLevel)
	}
	return &Logger{level: level, entry: logrus.NewEntry(base)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger { return New(LevelSilent, io.Discard) }

// Level returns the level of l.
func (l *Logger) Level() Level { return l.level }

// WithPrefix returns a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	if p, ok := l.entry.Data[prefixField].(string); ok && p != "" {
		prefix = p + " " + prefix
	}
	return &Logger{level: l.level, entry: l.entry.WithField(prefixField, prefix)}
}

// WithField returns a logger that attaches key=value to every line.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithField(key, value)}
}

// Info logs informational messages (always visible except silent mode)
func (l *Logger) Info(format string, args ...any) {
	l.entry.WithField(symbolField, "•").Infof(format, args...)
}

// Debug logs debug messages (visible in debug and trace modes)
func (l *Logger) Debug(format string, args ...any) {
	l.entry.WithField(symbolField, "→").Debugf(format, args...)
}

// Trace logs detailed trace messages (visible only in trace mode)
func (l *Logger) Trace(format string, args ...any) {
	l.entry.WithField(symbolField, "·").Tracef(format, args...)
}

// Progress logs progress information with timing
func (l *Logger) Progress(operation string, current, total int, elapsed time.Duration) {
	e := l.entry.WithField(symbolField, "▸")
	if total > 0 {
		percent := float64(current) / float64(total) * 100
		e.Infof("%s: %d/%d (%.1f%%) [%v]", operation, current, total, percent, elapsed.Truncate(time.Millisecond))
		return
	}
	e.Infof("%s: %d processed [%v]", operation, current, elapsed.Truncate(time.Millisecond))
}

// Step logs a processing step with context
func (l *Logger) Step(step string, details ...string) {
	msg := step
	if len(details) > 0 {
		msg += ": " + strings.Join(details, ", ")
	}
	l.entry.WithField(symbolField, "✓").Info(msg)
}

// Warning logs warning messages
func (l *Logger) Warning(format string, args ...any) {
	l.entry.WithField(symbolField, "⚠").Warnf(format, args...)
}

// Error logs error messages (always visible except silent mode)
func (l *Logger) Error(format string, args ...any) {
	l.entry.WithField(symbolField, "✗").Errorf(format, args...)
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves a logger from the context, returning a silent
// logger if none exists
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return Discard()
}

// formatter renders "<symbol> [prefix] message key=value ...".
type formatter struct{}

func (f *formatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	symbol, _ := e.Data[symbolField].(string)
	if symbol == "" {
		symbol = "•"
	}
	b.WriteString(symbol)
	b.WriteByte(' ')
	if prefix, ok := e.Data[prefixField].(string); ok && prefix != "" {
		fmt.Fprintf(&b, "[%s] ", prefix)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k != symbolField && k != prefixField {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
