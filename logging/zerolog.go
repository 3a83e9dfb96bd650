package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger on top of zerolog. It backs the colored
// console output of the CLI.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog logger.
func NewZerologAdapter(l zerolog.Logger) Logger { return &ZerologAdapter{logger: l} }

// NewConsoleLogger writes human readable records to w (os.Stderr when nil).
func NewConsoleLogger(level LogLevel, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level.zerologLevel()).
		With().
		Timestamp().
		Logger()
	return NewZerologAdapter(l)
}

// Debug implements Logger.
func (z *ZerologAdapter) Debug(msg string, args ...any) { emit(z.logger.Debug(), msg, args) }

// Info implements Logger.
func (z *ZerologAdapter) Info(msg string, args ...any) { emit(z.logger.Info(), msg, args) }

// Warn implements Logger.
func (z *ZerologAdapter) Warn(msg string, args ...any) { emit(z.logger.Warn(), msg, args) }

// Error implements Logger.
func (z *ZerologAdapter) Error(msg string, args ...any) { emit(z.logger.Error(), msg, args) }

func (z *ZerologAdapter) with(args []any) Logger {
	return &ZerologAdapter{logger: z.logger.With().Fields(pairs(args)).Logger()}
}

// emit is a no-op for disabled levels, where zerolog hands out a nil event.
func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	ev.Fields(pairs(args)).Msg(msg)
}

func pairs(args []any) []any {
	if len(args)%2 == 1 {
		return append(args[:len(args):len(args)], "(MISSING)")
	}
	return args
}
