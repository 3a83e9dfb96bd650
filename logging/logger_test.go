package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNewSlogLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewSlogLogger(LogLevelInfo, "json", &buf), "component", "router")

	l.Debug("hidden")
	l.Info("delivered", "topic", "parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "delivered", rec["msg"])
	assert.Equal(t, "router", rec["component"])
	assert.Equal(t, "parent", rec["topic"])
}

type captureLogger struct {
	NoOpLogger
	args []any
}

func (c *captureLogger) Info(_ string, args ...any) { c.args = args }

func TestWith_PrefixesNonSlogLoggers(t *testing.T) {
	c := &captureLogger{}
	With(c, "component", "endpoint").Info("x", "port", 8000)
	assert.Equal(t, []any{"component", "endpoint", "port", 8000}, c.args)
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
	LogModelCall(nil, "gpt-4", 10, time.Millisecond, nil)
}

func TestConsoleLogger_BindsFields(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewConsoleLogger(LogLevelWarn, &buf), "agent", "Coder")
	l.Info("hidden")
	l.Warn("turn retried", "attempt", 2)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "turn retried")
	assert.Contains(t, out, "Coder")
}

func TestConsoleLogger_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(LogLevelDebug, &buf)
	l.Info("endpoint running", "port", 8001, "odd")
	out := buf.String()
	assert.Contains(t, out, "endpoint running")
	assert.Contains(t, out, "8001")
}
