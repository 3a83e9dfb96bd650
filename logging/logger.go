package logging

import "time"

// Logger is the key/value logging contract used across agentcrew. Arguments
// after msg alternate between keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// backends that can bind fields natively implement this.
type binder interface {
	with(args []any) Logger
}

// With returns a logger that adds args to every record, e.g.
// With(l, "component", "router").
func With(l Logger, args ...any) Logger {
	l = OrNoOp(l)
	if len(args) == 0 {
		return l
	}
	if b, ok := l.(binder); ok {
		return b.with(args)
	}
	return &prefixed{inner: l, args: args}
}

type prefixed struct {
	inner Logger
	args  []any
}

func (p *prefixed) merge(args []any) []any {
	return append(append(make([]any, 0, len(p.args)+len(args)), p.args...), args...)
}

func (p *prefixed) Debug(msg string, args ...any) { p.inner.Debug(msg, p.merge(args)...) }
func (p *prefixed) Info(msg string, args ...any)  { p.inner.Info(msg, p.merge(args)...) }
func (p *prefixed) Warn(msg string, args ...any)  { p.inner.Warn(msg, p.merge(args)...) }
func (p *prefixed) Error(msg string, args ...any) { p.inner.Error(msg, p.merge(args)...) }

// OrNoOp returns l, or NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// LogModelCall records one completion: failures at error level, successes
// with token usage at debug level.
func LogModelCall(l Logger, model string, tokens int, dur time.Duration, err error) {
	l = OrNoOp(l)
	if err != nil {
		l.Error("model call failed", "model", model, "duration", dur, "error", err)
		return
	}
	l.Debug("model call completed", "model", model, "token_count", tokens, "duration", dur)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}
