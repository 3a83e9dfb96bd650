package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew/artifact"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/groupchat"
	"github.com/hupe1980/agentcrew/internal/testutil"
)

// seededChat plays a two-agent chat where the assistant only finishes the
// task with seed 42.
func seededChat(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error) {
	reply := "still working"
	if seed == 42 {
		reply = "done TERMINATE"
	}
	env := testutil.NewScriptedAgent("env")
	assistant := testutil.NewScriptedAgent("assistant")
	assistant.Fallback = func(int, []core.Message) testutil.Turn { return testutil.Say("assistant", reply) }

	gc, err := groupchat.New([]core.ChatAgent{assistant, env}, func(o *groupchat.Options) { o.MaxRound = 4 })
	if err != nil {
		return nil, err
	}
	return gc.Run(ctx, trial.Task)
}

func TestRunner_RecordsEveryRepetition(t *testing.T) {
	store := artifact.NewInMemoryStore()
	r := NewRunner(seededChat, func(o *Options) { o.Store = store })

	report, err := r.Run(context.Background(), []Trial{{Name: "0", Group: "pick_and_place", Task: "put the apple in the fridge"}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	for i, seed := range DefaultSeeds {
		o := report.Outcomes[i]
		assert.Equal(t, seed, o.Seed)
		assert.NoError(t, o.Err)
		if seed == 42 {
			assert.True(t, o.Succeeded)
			assert.Equal(t, "0.json", o.Artifact)
			assert.Equal(t, 1, o.Rounds)
		} else {
			assert.False(t, o.Succeeded)
			assert.Equal(t, "0_failed.json", o.Artifact)
			assert.Equal(t, groupchat.ReasonMaxRound, o.Reason)
		}
	}
	assert.Equal(t, 1, report.Succeeded())
	assert.InDelta(t, 1.0/3, report.SuccessRate(), 1e-9)

	ids, err := store.List("pick_and_place")
	require.NoError(t, err)
	assert.Equal(t, []string{"0.json", "0_failed.json"}, ids)
}

func TestRunner_FailuresDoNotAbortBatch(t *testing.T) {
	store := artifact.NewInMemoryStore()
	chat := func(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error) {
		switch {
		case trial.Name == "flaky" && seed == 41:
			return nil, errors.New("rate limited")
		case trial.Name == "flaky" && seed == 42:
			panic("index out of range")
		default:
			return seededChat(ctx, trial, seed)
		}
	}
	r := NewRunner(chat, func(o *Options) {
		o.Seeds = []int64{41, 42}
		o.Store = store
	})

	report, err := r.Run(context.Background(), []Trial{{Name: "flaky"}, {Name: "steady"}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 4)

	errs := report.Errors()
	require.Len(t, errs, 2)
	for _, o := range errs {
		var terr *core.TransientTaskError
		require.ErrorAs(t, o.Err, &terr)
		assert.Equal(t, fmt.Sprintf("flaky/seed_%d", o.Seed), terr.Trial)
		assert.Equal(t, "flaky_failed.json", o.Artifact)
	}
	assert.Contains(t, errs[1].Err.Error(), "panic: index out of range")

	assert.Equal(t, "steady", report.Outcomes[2].Trial)
	assert.True(t, report.Outcomes[3].Succeeded)

	data, err := store.Get("trials", "flaky_failed.json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestRunner_StopOnSuccess(t *testing.T) {
	calls := 0
	chat := func(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error) {
		calls++
		return seededChat(ctx, trial, seed)
	}
	r := NewRunner(chat, func(o *Options) { o.StopOnSuccess = true })

	report, err := r.Run(context.Background(), []Trial{{Name: "t"}})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, report.Outcomes, 2)
}

func TestRunner_Concurrency(t *testing.T) {
	gauge := &testutil.Gauge{}
	chat := func(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error) {
		gauge.Enter()
		defer gauge.Exit()
		time.Sleep(5 * time.Millisecond)
		return &groupchat.Result{Reason: groupchat.ReasonMaxRound}, nil
	}
	r := NewRunner(chat, func(o *Options) {
		o.Concurrency = 2
		o.Seeds = []int64{1}
	})

	trials := make([]Trial, 6)
	for i := range trials {
		trials[i] = Trial{Name: fmt.Sprint(i)}
	}
	report, err := r.Run(context.Background(), trials)
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 6)
	assert.LessOrEqual(t, gauge.Peak(), 2)
	for i, o := range report.Outcomes {
		assert.Equal(t, fmt.Sprint(i), o.Trial)
	}
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chat := func(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error) {
		cancel()
		return &groupchat.Result{Reason: groupchat.ReasonMaxRound}, nil
	}

	report, err := NewRunner(chat).Run(ctx, []Trial{{Name: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, report.Outcomes, 1)
}
