package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Constructors(t *testing.T) {
	m := NewTextMessage("coder", RoleAssistant, "hello")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, MessageTypeText, m.Type)
	assert.Equal(t, "coder", m.Source)
	assert.False(t, m.CreatedAt.IsZero())

	calls := []FunctionCall{{ID: "c1", Name: "add", Arguments: `{"a":1}`}}
	call := NewToolCallMessage("coder", calls)
	calls[0].Name = "mutated"
	require.Len(t, call.FunctionCalls(), 1)
	assert.Equal(t, "add", call.FunctionCalls()[0].Name, "payload must be copied")
	assert.Nil(t, call.FunctionResponses())

	res := NewToolResultMessage("coder", []FunctionResponse{{ID: "c1", Name: "add", Content: "2"}})
	assert.Equal(t, RoleTool, res.Role)
	assert.Equal(t, "2", res.FunctionResponses()[0].Content)

	stop := NewStopMessage("critic", RoleAssistant, "done")
	assert.Equal(t, MessageTypeStop, stop.Type)
	assert.Equal(t, RoleAssistant, stop.Role)

	exit := NewStopMessage("human", RoleHuman, "exit")
	assert.Equal(t, RoleHuman, exit.Role)
}

func TestMessage_WithUsageDoesNotMutate(t *testing.T) {
	m := NewTextMessage("a", RoleAssistant, "x")
	u := m.WithUsage(Usage{PromptTokens: 3, CompletionTokens: 4})
	assert.Nil(t, m.Usage)
	require.NotNil(t, u.Usage)
	assert.Equal(t, 7, u.Usage.Total())
}

func TestRole_IsHuman(t *testing.T) {
	assert.True(t, RoleHuman.IsHuman())
	assert.False(t, RoleUser.IsHuman())
	assert.False(t, RoleAssistant.IsHuman())
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("boom")

	pe := &ProvisioningError{EndpointID: "m_localhost", Host: "localhost", Port: 8000, Reason: "timeout", Err: base}
	assert.ErrorIs(t, pe, base)
	assert.Contains(t, pe.Error(), "localhost:8000")

	te := &TransientTaskError{Trial: "t1", Err: base}
	assert.ErrorIs(t, te, base)

	var target *TimeoutError
	err := error(&TimeoutError{Op: "human input", After: 300 * time.Millisecond})
	assert.True(t, errors.As(err, &target))
	assert.Contains(t, (&ConfigNotFoundError{Path: "x.json"}).Error(), "x.json")
}

func TestCallBudget(t *testing.T) {
	b := CallBudget{Max: 2}
	require.NoError(t, b.Spend())
	assert.Equal(t, 1, b.Left())
	require.NoError(t, b.Spend())
	err := b.Spend()
	assert.ErrorIs(t, err, ErrModelCallLimit)
	assert.Equal(t, 2, b.Used())
	assert.Equal(t, 0, b.Left())

	unlimited := CallBudget{}
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Spend())
	}
	assert.Equal(t, -1, unlimited.Left())
}
