package logging

import (
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel selects the minimum severity a backend writes. It is independent
// of the backend so settings files can name it once.
type LogLevel int

// Supported levels.
const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levels = [...]struct {
	name  string
	slog  slog.Level
	zero  zerolog.Level
	alias string
}{
	LogLevelDebug: {"DEBUG", slog.LevelDebug, zerolog.DebugLevel, ""},
	LogLevelInfo:  {"INFO", slog.LevelInfo, zerolog.InfoLevel, ""},
	LogLevelWarn:  {"WARN", slog.LevelWarn, zerolog.WarnLevel, "WARNING"},
	LogLevelError: {"ERROR", slog.LevelError, zerolog.ErrorLevel, ""},
}

func (l LogLevel) valid() bool { return l >= LogLevelDebug && l <= LogLevelError }

// String implements fmt.Stringer.
func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else is LogLevelInfo.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, lv := range levels {
		if s == lv.name || (lv.alias != "" && s == lv.alias) {
			return LogLevel(i)
		}
	}
	return LogLevelInfo
}

func (l LogLevel) slogLevel() slog.Level {
	if !l.valid() {
		return slog.LevelInfo
	}
	return levels[l].slog
}

func (l LogLevel) zerologLevel() zerolog.Level {
	if !l.valid() {
		return zerolog.InfoLevel
	}
	return levels[l].zero
}
