// Package logging provides the leveled, printf-style logger used across the
// ETL. Output is either human readable text or one JSON object per line.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
// "warning" is accepted as an alias for warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (use debug, info, warn or error)", s)
}

type logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	format string
	json   *slog.Logger
}

var std = &logger{out: os.Stderr, level: LevelInfo, format: "text"}

// SetOutput redirects log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	std.out = w
	std.json = nil
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	std.mu.Lock()
	std.level = l
	std.mu.Unlock()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.level
}

// SetFormat selects "json" or "text" output. Anything else means text.
func SetFormat(format string) {
	std.mu.Lock()
	defer std.mu.Unlock()
	if strings.EqualFold(format, "json") {
		std.format = "json"
	} else {
		std.format = "text"
	}
	std.json = nil
}

// jsonLogger lazily builds the slog JSON handler with the ts/level/msg keys.
// Caller holds std.mu.
func (l *logger) jsonLogger() *slog.Logger {
	if l.json != nil {
		return l.json
	}
	h := slog.NewJSONHandler(l.out, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
			}
			return a
		},
	})
	l.json = slog.New(h)
	return l.json
}

func (l *logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.format == "json" {
		l.jsonLogger().Log(context.Background(), level.slogLevel(), msg)
		return
	}
	fmt.Fprintf(l.out, "%s [%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg)
}

func Debug(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }

func Info(format string, args ...interface{}) { std.log(LevelInfo, format, args...) }

func Warn(format string, args ...interface{}) { std.log(LevelWarn, format, args...) }

func Error(format string, args ...interface{}) { std.log(LevelError, format, args...) }

// IsDebug reports whether debug output is enabled.
func IsDebug() bool {
	return GetLevel() <= LevelDebug
}
