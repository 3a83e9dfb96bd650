package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
)

func userMsg(text string) []core.Message {
	return []core.Message{core.NewTextMessage("user", core.RoleUser, text)}
}

func TestMockModel_DefaultAndCanned(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hello", "world")

	resp, err := Complete(context.Background(), m, Request{Messages: userMsg("hello")})
	require.NoError(t, err)
	assert.Equal(t, "world", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 2, resp.Usage.Total())

	resp, err = Complete(context.Background(), m, Request{Messages: userMsg("other")})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)
	assert.Len(t, m.Requests(), 2)
}

func TestMockModel_QueueTakesPrecedence(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "canned")
	m.Enqueue("first")
	boom := errors.New("boom")
	m.EnqueueError(boom)

	resp, err := Complete(context.Background(), m, Request{Messages: userMsg("hi")})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)

	_, err = Complete(context.Background(), m, Request{Messages: userMsg("hi")})
	assert.ErrorIs(t, err, boom)

	resp, err = Complete(context.Background(), m, Request{Messages: userMsg("hi")})
	require.NoError(t, err)
	assert.Equal(t, "canned", resp.Text)
}

func TestMockModel_Streaming(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.Enqueue("abc")

	respCh, errCh := m.Generate(context.Background(), Request{Messages: userMsg("x"), Stream: true})
	var partials int
	var final Response
	for r := range respCh {
		if r.Partial {
			partials++
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, 3, partials)
	assert.Equal(t, "abc", final.Text)
}

func TestMockModel_NoMessages(t *testing.T) {
	_, err := Complete(context.Background(), NewMockModel("mock", "mock"), Request{})
	assert.Error(t, err)
}

func TestResilient_PassesThrough(t *testing.T) {
	inner := NewMockModel("mock", "mock")
	inner.Enqueue("ok")
	r := NewResilient(inner)

	resp, err := Complete(context.Background(), r, Request{Messages: userMsg("x")})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "mock", r.Info().Name)
}

func TestResilient_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := NewMockModel("mock", "mock")
	boom := errors.New("service down")
	inner.EnqueueError(boom)
	inner.EnqueueError(boom)

	r := NewResilient(inner, func(o *ResilientOptions) {
		o.MaxFailures = 2
		o.OpenTimeout = time.Minute
	})

	for i := 0; i < 2; i++ {
		_, err := Complete(context.Background(), r, Request{Messages: userMsg("x")})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := Complete(context.Background(), r, Request{Messages: userMsg("x")})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	// the open circuit short-circuits without reaching the inner model
	assert.Len(t, inner.Requests(), 2)
}

func TestResilient_RateLimitHonorsContext(t *testing.T) {
	inner := NewMockModel("mock", "mock")
	r := NewResilient(inner, func(o *ResilientOptions) {
		o.RequestsPerSecond = 0.001
		o.Burst = 1
	})

	_, err := Complete(context.Background(), r, Request{Messages: userMsg("x")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Complete(ctx, r, Request{Messages: userMsg("x")})
	assert.Error(t, err)
	assert.Len(t, inner.Requests(), 1)
}

func TestConfigList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "OAI_CONFIG_LIST")
	data := `
- model: gpt-4
  api_key: sk-test
- model: meta-llama/Llama-2-7b-chat-hf
  base_url: http://127.0.0.1:8000/v1
- model: claude-3-5-sonnet-20241022
  api_type: anthropic
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	list, err := LoadConfigList(path)
	require.NoError(t, err)
	require.Len(t, list, 3)

	filtered := list.Filter("gpt-4", "claude-3-5-sonnet-20241022")
	require.Len(t, filtered, 2)
	assert.Equal(t, "anthropic", filtered[1].APIType)

	e, ok := list.First("meta-llama/Llama-2-7b-chat-hf")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:8000/v1", e.BaseURL)

	_, ok = list.First("missing")
	assert.False(t, ok)
}

func TestParseConfigList_JSONAndValidation(t *testing.T) {
	list, err := ParseConfigList([]byte(`[{"model":"gpt-4","api_key":"k"}]`))
	require.NoError(t, err)
	assert.Equal(t, "k", list[0].APIKey)

	_, err = ParseConfigList([]byte(`[{"api_key":"k"}]`))
	assert.Error(t, err)
}
