package logging

import (
	"io"
	"log/slog"
	"os"
)

// SlogAdapter implements Logger on top of *slog.Logger. The json handler is
// the format for machine collected runs.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter wraps an existing slog logger.
func NewSlogAdapter(l *slog.Logger) Logger { return &SlogAdapter{Logger: l} }

// NewSlogLogger writes json records, or text records when format is "text",
// to w (os.Stderr when nil).
func NewSlogLogger(level LogLevel, format string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	if format == "text" {
		return NewSlogAdapter(slog.New(slog.NewTextHandler(w, opts)))
	}
	return NewSlogAdapter(slog.New(slog.NewJSONHandler(w, opts)))
}

// Debug implements Logger.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info implements Logger.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn implements Logger.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error implements Logger.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

func (s *SlogAdapter) with(args []any) Logger { return &SlogAdapter{Logger: s.Logger.With(args...)} }
