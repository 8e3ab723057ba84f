package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(New(os.Stderr, slog.LevelInfo))
}

// New returns a logger writing to w at level. Output is colored only when
// w is a terminal.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ParseLevel accepts debug, info, warn and error in any case. An empty
// string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Setup replaces the process logger and makes it the slog default.
func Setup(w io.Writer, level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetLogger(New(w, lvl))
	return nil
}

func SetLogger(l *slog.Logger) {
	current.Store(l)
	slog.SetDefault(l)
}

func Logger() *slog.Logger {
	return current.Load()
}

// WithComponent returns the process logger tagged with component.
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}

// Enabled reports whether messages at level would be written.
func Enabled(level slog.Level) bool {
	return Logger().Enabled(context.Background(), level)
}

// Logf logs a formatted message at info level.
func Logf(format string, v ...any) {
	Logger().Info(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

func DebugWithComponent(component, msg string, args ...any) {
	WithComponent(component).Debug(msg, args...)
}

func InfoWithComponent(component, msg string, args ...any) {
	WithComponent(component).Info(msg, args...)
}

func WarnWithComponent(component, msg string, args ...any) {
	WithComponent(component).Warn(msg, args...)
}

func ErrorWithComponent(component, msg string, args ...any) {
	WithComponent(component).Error(msg, args...)
}
