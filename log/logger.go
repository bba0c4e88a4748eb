// Package log provides leveled structured logging over log/slog.
// The first argument of each call names the emitting object; anything
// implementing fmt.Stringer is rendered, nil is omitted.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

type Logger struct {
	slog  *slog.Logger
	level atomic.Int32
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	// the handler never filters; the Logger's own level gates calls
	defaultLogger.Store(New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(LevelTrace),
	})))
}

// New creates a Logger over a slog handler.
func New(handler slog.Handler) *Logger {
	l := &Logger{slog: slog.New(handler)}
	l.level.Store(int32(LevelInfo))
	return l
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Level returns the logger's current level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// SetLevel changes the logger's level.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) log(level Level, src any, msg string, kvs ...any) {
	if level < l.Level() {
		return
	}
	if src != nil {
		if s, ok := src.(fmt.Stringer); ok {
			kvs = append([]any{"src", s.String()}, kvs...)
		} else {
			kvs = append([]any{"src", src}, kvs...)
		}
	}
	l.slog.Log(context.Background(), slog.Level(level), msg, kvs...)
}

func Trace(src any, msg string, kvs ...any) {
	Default().log(LevelTrace, src, msg, kvs...)
}

func Debug(src any, msg string, kvs ...any) {
	Default().log(LevelDebug, src, msg, kvs...)
}

func Info(src any, msg string, kvs ...any) {
	Default().log(LevelInfo, src, msg, kvs...)
}

func Warn(src any, msg string, kvs ...any) {
	Default().log(LevelWarn, src, msg, kvs...)
}

func Error(src any, msg string, kvs ...any) {
	Default().log(LevelError, src, msg, kvs...)
}

// Fatal logs at FATAL and exits the process.
func Fatal(src any, msg string, kvs ...any) {
	Default().log(LevelFatal, src, msg, kvs...)
	os.Exit(1)
}
