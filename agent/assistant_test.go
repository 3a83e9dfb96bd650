package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/testutil"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

// runTurn runs one turn of a and collects its events and final error.
func runTurn(t *testing.T, a core.ChatAgent, messages []core.Message, opts core.TurnOptions) ([]core.Event, error) {
	t.Helper()
	events, errCh := a.OnMessagesStream(context.Background(), messages, opts)
	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out, <-errCh
}

func TestAssistantAgent_TextReply(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.Enqueue("Here is the plan. TERMINATE")

	a := NewAssistantAgent("planner", llm, func(o *AssistantOptions) {
		o.Instruction = NewInstructionFromText("You plan.")
	})
	assert.Equal(t, []core.MessageType{core.MessageTypeText}, a.ProducedMessageTypes())

	task := testutil.NewMessageBuilder().Source("user").UserText("make a plan").Build()
	events, err := runTurn(t, a, []core.Message{task}, core.TurnOptions{Attempt: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)

	resp, ok := events[0].(core.Response)
	require.True(t, ok)
	assert.Equal(t, "planner", resp.Message.Source)
	assert.Equal(t, core.RoleAssistant, resp.Message.Role)
	assert.Equal(t, "Here is the plan. TERMINATE", resp.Message.Content)
	require.NotNil(t, resp.Message.Usage)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You plan.", reqs[0].SystemMessage)
	assert.Len(t, a.History(), 2)
}

func TestAssistantAgent_PerceivesOthersAsUser(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	a := NewAssistantAgent("critic", llm)

	other := testutil.NewMessageBuilder().Source("coder").AssistantText("code").Build()
	_, err := runTurn(t, a, []core.Message{other}, core.TurnOptions{})
	require.NoError(t, err)

	req := llm.Requests()[0]
	assert.Equal(t, core.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "coder", req.Messages[0].Source)
}

func TestAssistantAgent_SeedForwarded(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	a := NewAssistantAgent("a", llm)

	seed := int64(42)
	msg := testutil.NewMessageBuilder().UserText("hi").Build()
	_, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{Attempt: 2, Seed: &seed})
	require.NoError(t, err)

	require.NotNil(t, llm.Requests()[0].Sampling.Seed)
	assert.Equal(t, int64(42), *llm.Requests()[0].Sampling.Seed)
}

func TestAssistantAgent_ToolLoop(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse(model.Response{
		Calls:        []core.FunctionCall{{ID: "c1", Name: "add", Arguments: `{"a":2,"b":3}`}},
		FinishReason: "tool_calls",
	})
	llm.Enqueue("The sum is 5.")

	add := tool.NewFunctionTool("add", "add numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	a := NewAssistantAgent("calc", llm, func(o *AssistantOptions) { o.Tools = []tool.Tool{add} })
	assert.True(t, core.Produces(a, core.MessageTypeToolCall))

	msg := testutil.NewMessageBuilder().UserText("add 2 and 3").Build()
	events, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	call := events[0].(core.Message)
	assert.Equal(t, core.MessageTypeToolCall, call.Type)
	result := events[1].(core.Message)
	assert.Equal(t, core.MessageTypeToolResult, result.Type)
	assert.Equal(t, "5", result.FunctionResponses()[0].Content)

	final := events[2].(core.Response)
	assert.Equal(t, "The sum is 5.", final.Message.Content)
	assert.Len(t, final.Inner, 2)

	second := llm.Requests()[1]
	require.Len(t, second.Tools, 1)
	assert.Len(t, second.Messages, 3)
}

func TestAssistantAgent_ModelCallLimit(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	loop := model.Response{Calls: []core.FunctionCall{{ID: "c", Name: "noop"}}}
	for i := 0; i < 3; i++ {
		llm.EnqueueResponse(loop)
	}
	noop := tool.NewFunctionTool("noop", "does nothing", nil, func(context.Context, map[string]any) (any, error) {
		return "done", nil
	})

	a := NewAssistantAgent("looper", llm, func(o *AssistantOptions) {
		o.Tools = []tool.Tool{noop}
		o.MaxModelCalls = 2
	})
	msg := testutil.NewMessageBuilder().UserText("go").Build()
	_, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{})
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Empty(t, a.History())
}

func TestAssistantAgent_FailedTurnRollsBackHistory(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	boom := errors.New("model unavailable")
	llm.EnqueueError(boom)
	llm.Enqueue("second try")

	a := NewAssistantAgent("a", llm)
	msg := testutil.NewMessageBuilder().UserText("task").Build()

	_, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{Attempt: 1})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, a.History())

	events, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{Attempt: 2})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, a.History(), 2)
	assert.Len(t, llm.Requests()[1].Messages, 1)

	require.NoError(t, a.Reset(context.Background()))
	assert.Empty(t, a.History())
}

func TestAssistantAgent_HistoryWindow(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	a := NewAssistantAgent("a", llm, func(o *AssistantOptions) { o.MaxHistoryMessages = 2 })

	for i := 0; i < 3; i++ {
		msg := testutil.NewMessageBuilder().UserText("turn").Build()
		_, err := runTurn(t, a, []core.Message{msg}, core.TurnOptions{})
		require.NoError(t, err)
	}
	reqs := llm.Requests()
	assert.Len(t, reqs[2].Messages, 2)
}

func TestAssistantAgent_Defaults(t *testing.T) {
	a := NewAssistantAgent("Coder", model.NewMockModel("mock", "mock"))
	assert.Equal(t, "AI assistant Coder", a.Description())

	system, err := a.Instruction().Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemMessage, system)

	b := NewAssistantAgent("Critic", model.NewMockModel("mock", "mock"), func(o *AssistantOptions) {
		o.Description = "Reviews the Coder's work."
	})
	assert.Equal(t, "Reviews the Coder's work.", b.Description())
}
