// Package logging defines the Logger capability injected into every
// component that needs it. Adapted from the teacher's log.Logger interface
// but, per SPEC_FULL.md section 9's "singleton logger/service" translation
// note, with the package-level default removed: callers construct one
// logger and pass references, never reach for a process-global.
package logging

import (
	"fmt"

	"github.com/kataras/golog"
)

// Level mirrors the teacher's LogLevel enum.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// Logger is the leveled logging capability every component depends on.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	// With returns a derived logger that prefixes every line with the
	// given component name, so a CostLedger failure and a ModelClient
	// failure are distinguishable in shared output.
	With(component string) Logger
}

// gologLogger implements Logger using kataras/golog, grounded on the
// teacher's log/golog_logger.go adapter.
type gologLogger struct {
	logger *golog.Logger
	level  Level
	prefix string
}

// New wraps an existing golog.Logger (e.g. golog.New()) at the given level.
func New(l *golog.Logger, level Level) Logger {
	return &gologLogger{logger: l, level: level}
}

// NewDefault creates a Logger on a fresh golog instance at info level,
// suitable as the root logger a process constructs once at startup.
func NewDefault() Logger {
	return New(golog.New(), LevelInfo)
}

func (g *gologLogger) line(format string, v []any) []any {
	msg := fmt.Sprintf(format, v...)
	if g.prefix != "" {
		msg = "[" + g.prefix + "] " + msg
	}
	return []any{msg}
}

func (g *gologLogger) Debug(format string, v ...any) {
	if g.level <= LevelDebug {
		g.logger.Debug(g.line(format, v)...)
	}
}

func (g *gologLogger) Info(format string, v ...any) {
	if g.level <= LevelInfo {
		g.logger.Info(g.line(format, v)...)
	}
}

func (g *gologLogger) Warn(format string, v ...any) {
	if g.level <= LevelWarn {
		g.logger.Warn(g.line(format, v)...)
	}
}

func (g *gologLogger) Error(format string, v ...any) {
	if g.level <= LevelError {
		g.logger.Error(g.line(format, v)...)
	}
}

func (g *gologLogger) With(component string) Logger {
	prefix := component
	if g.prefix != "" {
		prefix = g.prefix + "." + component
	}
	return &gologLogger{logger: g.logger, level: g.level, prefix: prefix}
}

// NoOp is a Logger that discards everything; useful in tests.
type NoOp struct{}

func (NoOp) Debug(string, ...any) {}
func (NoOp) Info(string, ...any)  {}
func (NoOp) Warn(string, ...any)  {}
func (NoOp) Error(string, ...any) {}
func (n NoOp) With(string) Logger { return n }
