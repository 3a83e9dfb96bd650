package agentcrew_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcrew"
	"github.com/hupe1980/agentcrew/artifact"
	"github.com/hupe1980/agentcrew/build"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/endpoint"
	"github.com/hupe1980/agentcrew/groupchat"
	"github.com/hupe1980/agentcrew/model"
)

// MockPlanner records planner calls.
type MockPlanner struct{ mock.Mock }

func (m *MockPlanner) Plan(ctx context.Context, task string) (build.Plan, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(build.Plan), args.Error(1)
}

func (m *MockPlanner) NeedsCoding(ctx context.Context, task string) (bool, error) {
	args := m.Called(ctx, task)
	return args.Bool(0), args.Error(1)
}

func newMockPlanner(plan build.Plan, coding bool) *MockPlanner {
	p := &MockPlanner{}
	p.On("Plan", mock.Anything, mock.Anything).Return(plan, nil)
	p.On("NeedsCoding", mock.Anything, mock.Anything).Return(coding, nil)
	return p
}

// models hands out one mock per model ID.
type models struct {
	mu     sync.Mutex
	byName map[string]*model.MockModel
}

func newModels() *models { return &models{byName: map[string]*model.MockModel{}} }

func (m *models) Get(id string) *model.MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.byName[id]
	if !ok {
		mm = model.NewMockModel(id, "mock")
		m.byName[id] = mm
	}
	return mm
}

func (m *models) Factory(spec endpoint.ModelSpec) (model.Model, error) {
	return m.Get(spec.Model), nil
}

func team() build.Plan {
	return build.Plan{
		Agents: []build.AgentSpec{
			{Name: "Coder", Model: "gpt-4", SystemMessage: "You write code."},
			{Name: "Critic", Model: "gpt-4o", SystemMessage: "You review code."},
		},
		ManagerSystemMessage: "Pick the next expert.",
	}
}

func newCrew(t *testing.T, planner build.Planner, mm *models, optFns ...func(o *agentcrew.Options)) *agentcrew.Crew {
	t.Helper()
	mgr := endpoint.NewManager(func(o *endpoint.Options) { o.ModelFactory = mm.Factory })
	fns := append([]func(o *agentcrew.Options){func(o *agentcrew.Options) {
		o.Manager = mgr
		o.Planner = planner
		o.ConfigDir = t.TempDir()
	}}, optFns...)
	crew := agentcrew.New(fns...)
	t.Cleanup(func() { _ = crew.Close() })
	return crew
}

func names(agents []core.ChatAgent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name()
	}
	return out
}

func TestCrew_SaveThenLoadRestoresRosterWithoutPlanning(t *testing.T) {
	ctx := context.Background()
	planner := newMockPlanner(team(), true)
	built := newCrew(t, planner, newModels())

	cfg, err := built.Build(ctx, "Find a recent paper about GPT-4.", agentcrew.BuildOptions{
		DefaultLLMConfig: map[string]any{"temperature": 0.0},
	})
	require.NoError(t, err)
	assert.True(t, cfg.Coding)

	path, err := built.Save("")
	require.NoError(t, err)
	assert.Equal(t, "save_config_", filepath.Base(path)[:len("save_config_")])

	restoredPlanner := &MockPlanner{}
	restored := newCrew(t, restoredPlanner, newModels())
	loaded, err := restored.Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, cfg.AgentConfigs, loaded.AgentConfigs)
	assert.Equal(t, cfg.ManagerSystemMessage, loaded.ManagerSystemMessage)
	assert.Equal(t, cfg.Coding, loaded.Coding)
	assert.Equal(t, names(built.Participants()), names(restored.Participants()))
	assert.Equal(t, []string{"Coder", "Critic", build.UserProxyName}, names(restored.Participants()))

	planner.AssertNumberOfCalls(t, "Plan", 1)
	planner.AssertNumberOfCalls(t, "NeedsCoding", 1)
	restoredPlanner.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything)
	restoredPlanner.AssertNotCalled(t, "NeedsCoding", mock.Anything, mock.Anything)
}

func TestCrew_CodingOverrideSkipsPlannerDecision(t *testing.T) {
	planner := newMockPlanner(team(), true)
	crew := newCrew(t, planner, newModels())

	coding := false
	cfg, err := crew.Build(context.Background(), "Summarize.", agentcrew.BuildOptions{Coding: &coding})
	require.NoError(t, err)

	assert.False(t, cfg.Coding)
	assert.Equal(t, []string{"Coder", "Critic"}, names(crew.Participants()))
	planner.AssertNotCalled(t, "NeedsCoding", mock.Anything, mock.Anything)
}

func TestCrew_RequiresBuild(t *testing.T) {
	crew := newCrew(t, nil, newModels())

	_, err := crew.Build(context.Background(), "task", agentcrew.BuildOptions{})
	assert.ErrorIs(t, err, agentcrew.ErrNoPlanner)

	_, err = crew.Save("")
	assert.ErrorIs(t, err, agentcrew.ErrNotBuilt)

	_, err = crew.Start(context.Background(), "task", agentcrew.StartOptions{})
	assert.ErrorIs(t, err, agentcrew.ErrNotBuilt)
	assert.Nil(t, crew.Config())
}

func TestCrew_BuildRejectsEmptyTask(t *testing.T) {
	planner := newMockPlanner(team(), false)
	crew := newCrew(t, planner, newModels())

	_, err := crew.Build(context.Background(), " ", agentcrew.BuildOptions{})
	assert.ErrorIs(t, err, build.ErrEmptyTask)
	planner.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything)
	assert.Nil(t, crew.Config())
}

func TestCrew_LoadMissingConfig(t *testing.T) {
	crew := newCrew(t, nil, newModels())

	_, err := crew.Load(context.Background(), filepath.Join(t.TempDir(), "missing.json"))

	var notFound *core.ConfigNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCrew_StartRunsChatOverRoster(t *testing.T) {
	mm := newModels()
	mm.Get("gpt-4o").Enqueue("Looks good. TERMINATE")
	store := artifact.NewInMemoryStore()
	crew := newCrew(t, build.StaticPlanner{Roster: team()}, mm, func(o *agentcrew.Options) { o.Store = store })

	_, err := crew.Build(context.Background(), "Review the patch.", agentcrew.BuildOptions{})
	require.NoError(t, err)

	res, err := crew.Start(context.Background(), "Review the patch.", agentcrew.StartOptions{Transcript: "review"})
	require.NoError(t, err)

	assert.Equal(t, groupchat.ReasonTerminated, res.Reason)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"Critic"}, res.Speakers)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Coder", res.Messages[0].Source)
	assert.Empty(t, mm.Get("gpt-4").Requests())

	saved, err := store.List(res.ChatID)
	require.NoError(t, err)
	assert.Equal(t, []string{"review.json"}, saved)
}

func TestCrew_ManagerModelPicksSpeaker(t *testing.T) {
	mm := newModels()
	mm.Get("gpt-4o").Enqueue("TERMINATE")
	selector := model.NewMockModel("selector", "mock")
	selector.Enqueue("Critic")
	crew := newCrew(t, build.StaticPlanner{Roster: team()}, mm, func(o *agentcrew.Options) { o.ManagerModel = selector })

	_, err := crew.Build(context.Background(), "task", agentcrew.BuildOptions{})
	require.NoError(t, err)
	res, err := crew.Start(context.Background(), "task", agentcrew.StartOptions{MaxRound: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"Critic"}, res.Speakers)
	reqs := selector.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].SystemMessage, "Pick the next expert.")
}

func TestCrew_FailedBuildClearsPartialRoster(t *testing.T) {
	mm := newModels()
	mgr := endpoint.NewManager(func(o *endpoint.Options) { o.ModelFactory = mm.Factory })
	_, err := mgr.CreateAgent(context.Background(), "Critic", "gpt-4", endpoint.AgentOptions{})
	require.NoError(t, err)

	crew := agentcrew.New(func(o *agentcrew.Options) {
		o.Manager = mgr
		o.Planner = build.StaticPlanner{Roster: team()}
	})

	_, err = crew.Build(context.Background(), "task", agentcrew.BuildOptions{})
	require.ErrorIs(t, err, endpoint.ErrDuplicateAgent)

	_, ok := mgr.Agent("Coder")
	assert.False(t, ok)
	assert.Len(t, mgr.Registrations(), 1)
	assert.Nil(t, crew.Config())
}

func TestCrew_CloseReleasesAgents(t *testing.T) {
	mm := newModels()
	mgr := endpoint.NewManager(func(o *endpoint.Options) { o.ModelFactory = mm.Factory })
	crew := agentcrew.New(func(o *agentcrew.Options) {
		o.Manager = mgr
		o.Planner = build.StaticPlanner{Roster: team()}
	})

	_, err := crew.Build(context.Background(), "task", agentcrew.BuildOptions{})
	require.NoError(t, err)
	assert.Len(t, mgr.Registrations(), 2)

	require.NoError(t, crew.Close())
	assert.Empty(t, mgr.Registrations())
	assert.Zero(t, mgr.RefCount(endpoint.HostedEndpointID))
	assert.False(t, errors.Is(crew.Close(), endpoint.ErrUnknownAgent))
}
