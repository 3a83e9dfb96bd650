package agent

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/code"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/testutil"
)

type fakeExecutor struct {
	blocks []code.Block
}

func (f *fakeExecutor) Execute(_ context.Context, blocks []code.Block) (code.Result, error) {
	f.blocks = append(f.blocks, blocks...)
	return code.Result{ExitCode: 0, Output: "42\n"}, nil
}

func responseOf(t *testing.T, events []core.Event) core.Message {
	t.Helper()
	require.Len(t, events, 1)
	resp, ok := events[0].(core.Response)
	require.True(t, ok)
	return resp.Message
}

func TestUserProxy_PatienceTimeout(t *testing.T) {
	u := NewUserProxyAgent("human", func(o *UserProxyOptions) {
		o.Input = NewStaticInput()
		o.Patience = 300 * time.Millisecond
	})

	start := time.Now()
	_, err := u.AwaitInput(context.Background(), "> ")
	var terr *core.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 300*time.Millisecond, terr.After)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// blockingInput ignores its context entirely.
type blockingInput struct{ release chan struct{} }

func (b blockingInput) ReadInput(context.Context, string) (string, error) {
	<-b.release
	return "late", nil
}

func TestUserProxy_PatienceTimeoutWithUncooperativeProvider(t *testing.T) {
	in := blockingInput{release: make(chan struct{})}
	defer close(in.release)

	u := NewUserProxyAgent("human", func(o *UserProxyOptions) {
		o.Input = in
		o.Patience = 50 * time.Millisecond
	})

	msg := testutil.NewMessageBuilder().Source("assistant").AssistantText("hi").Build()
	_, err := runTurn(t, u, []core.Message{msg}, core.TurnOptions{})
	var terr *core.TimeoutError
	assert.ErrorAs(t, err, &terr)
}

func TestUserProxy_TimeoutSentinel(t *testing.T) {
	u := NewUserProxyAgent("human", func(o *UserProxyOptions) {
		o.Input = NewStaticInput()
		o.Patience = 20 * time.Millisecond
	}, WithTimeoutSentinel(ExitCommand))

	events, err := runTurn(t, u, nil, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.MessageTypeStop, responseOf(t, events).Type)
}

func TestUserProxy_HumanText(t *testing.T) {
	var out bytes.Buffer
	input := NewStaticInput("looks good, continue")
	u := NewUserProxyAgent("human", func(o *UserProxyOptions) {
		o.Input = input
		o.Output = NewWriterSink(&out)
	})

	msg := testutil.NewMessageBuilder().Source("coder").AssistantText("draft ready").Build()
	events, err := runTurn(t, u, []core.Message{msg}, core.TurnOptions{})
	require.NoError(t, err)

	reply := responseOf(t, events)
	assert.Equal(t, core.RoleHuman, reply.Role)
	assert.Equal(t, "looks good, continue", reply.Content)
	assert.Contains(t, out.String(), "coder (to chat):")
	require.Len(t, input.Prompts(), 1)
	assert.True(t, strings.HasPrefix(input.Prompts()[0], "Provide feedback"))
}

func TestUserProxy_ExitCommand(t *testing.T) {
	u := NewUserProxyAgent("human", func(o *UserProxyOptions) { o.Input = NewStaticInput("exit") })
	events, err := runTurn(t, u, nil, core.TurnOptions{})
	require.NoError(t, err)
	reply := responseOf(t, events)
	assert.Equal(t, core.MessageTypeStop, reply.Type)
	assert.Equal(t, core.RoleHuman, reply.Role)
}

func TestUserProxy_NeverModeExecutesCode(t *testing.T) {
	exec := &fakeExecutor{}
	u := NewUserProxyAgent("executor", func(o *UserProxyOptions) {
		o.Mode = InputNever
		o.Executor = exec
	})

	msg := testutil.NewMessageBuilder().Source("coder").AssistantText("```python\nprint(6*7)\n```").Build()
	events, err := runTurn(t, u, []core.Message{msg}, core.TurnOptions{})
	require.NoError(t, err)

	reply := responseOf(t, events)
	assert.Equal(t, "exitcode: 0 (execution succeeded)\nCode output: 42\n", reply.Content)
	require.Len(t, exec.blocks, 1)
	assert.Equal(t, "python", exec.blocks[0].Language)
}

func TestUserProxy_TerminateModeAsksOnMarker(t *testing.T) {
	input := NewStaticInput("exit")
	u := NewUserProxyAgent("human", func(o *UserProxyOptions) {
		o.Mode = InputTerminate
		o.Input = input
		o.DefaultAutoReply = "continue"
	})

	plain := testutil.NewMessageBuilder().Source("a").AssistantText("working").Build()
	events, err := runTurn(t, u, []core.Message{plain}, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, "continue", responseOf(t, events).Content)
	assert.Empty(t, input.Prompts())

	done := testutil.NewMessageBuilder().Source("a").AssistantText("TERMINATE").Build()
	events, err = runTurn(t, u, []core.Message{done}, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.MessageTypeStop, responseOf(t, events).Type)
	assert.Len(t, input.Prompts(), 1)
}

func TestUserProxy_AutoReplyBudget(t *testing.T) {
	u := NewUserProxyAgent("proxy", func(o *UserProxyOptions) {
		o.Mode = InputNever
		o.MaxConsecutiveAutoReply = 1
	})

	events, err := runTurn(t, u, nil, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.MessageTypeText, responseOf(t, events).Type)

	events, err = runTurn(t, u, nil, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.MessageTypeStop, responseOf(t, events).Type)

	require.NoError(t, u.Reset(context.Background()))
	events, err = runTurn(t, u, nil, core.TurnOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.MessageTypeText, responseOf(t, events).Type)
}

func TestConsoleInput(t *testing.T) {
	var out bytes.Buffer
	in := NewConsoleInput(strings.NewReader("hello\r\nworld"), &out)

	line, err := in.ReadInput(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", line)

	line, err = in.ReadInput(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "world", line)
	assert.Equal(t, "> > ", out.String())

	_, err = in.ReadInput(context.Background(), "> ")
	assert.Error(t, err)
}
