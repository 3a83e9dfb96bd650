// Package agentcrew ties the building blocks of a task-specific agent team
// together. A Crew asks a Planner for a roster, starts or reuses the model
// endpoints each member needs, persists the resulting build config and runs
// group chats over the roster:
//
//  1. Build a roster for a task (or Load a saved one)
//  2. Save the config so the same team can be restored without planning
//  3. Start a group chat over the team
//  4. Close the crew to release agents and endpoints
package agentcrew

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentcrew/agent"
	"github.com/hupe1980/agentcrew/artifact"
	"github.com/hupe1980/agentcrew/build"
	"github.com/hupe1980/agentcrew/code"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/endpoint"
	"github.com/hupe1980/agentcrew/groupchat"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
)

var (
	// ErrNotBuilt is returned when a crew has no roster yet.
	ErrNotBuilt = errors.New("agentcrew: crew has not been built or loaded")
	// ErrNoPlanner is returned by Build without a Planner.
	ErrNoPlanner = errors.New("agentcrew: no planner configured")
)

// Options configures a Crew.
type Options struct {
	// Manager provisions endpoints and agents. It may be shared between crews.
	Manager *endpoint.Manager
	Planner build.Planner
	// ConfigDir receives saved build configs.
	ConfigDir string
	// Store receives chat transcripts.
	Store core.ArtifactStore
	// ManagerModel, when set, picks speakers instead of round robin.
	ManagerModel model.Model
	// Input and Output connect the user proxy of coding tasks to a human.
	Input  agent.InputProvider
	Output agent.OutputSink
	// Executor runs the code blocks the user proxy receives.
	Executor      code.Executor
	HumanPatience time.Duration
	Logger        logging.Logger
}

// BuildOptions configures Crew.Build.
type BuildOptions struct {
	// Coding overrides the planner's coding decision when set.
	Coding           *bool
	DefaultLLMConfig map[string]any
}

// StartOptions configures Crew.Start.
type StartOptions struct {
	MaxRound     int
	InitMessages []core.Message
	// Selector overrides the speaker selection derived from Options.ManagerModel.
	Selector    groupchat.Selector
	Termination groupchat.TerminationCondition
	Retry       groupchat.RetryPolicy
	TurnTimeout time.Duration
	OnMessage   func(m core.Message)
	// Transcript, when set, names the transcript written to Options.Store.
	Transcript string
}

// Crew is a built agent team.
type Crew struct {
	opts   Options
	logger logging.Logger

	mu        sync.Mutex
	cfg       *build.Config
	members   []*agent.AssistantAgent
	userProxy *agent.UserProxyAgent
}

// New creates a Crew. Unset services get local defaults: a fresh endpoint
// manager, an in-memory transcript store and a local code executor.
func New(optFns ...func(o *Options)) *Crew {
	opts := Options{
		ConfigDir:     ".",
		HumanPatience: 5 * time.Minute,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.With(logging.OrNoOp(opts.Logger), "component", "crew")
	if opts.Manager == nil {
		opts.Manager = endpoint.NewManager(func(o *endpoint.Options) { o.Logger = opts.Logger })
	}
	if opts.Store == nil {
		opts.Store = artifact.NewInMemoryStore()
	}
	if opts.Executor == nil {
		opts.Executor = code.NewLocalExecutor(func(o *code.LocalOptions) {
			o.WorkDir = "groupchat"
			o.Logger = opts.Logger
		})
	}

	return &Crew{opts: opts, logger: logger}
}

// Build plans a roster for task and provisions it. Agents of a previous
// build are cleared first.
func (c *Crew) Build(ctx context.Context, task string, opts BuildOptions) (*build.Config, error) {
	if c.opts.Planner == nil {
		return nil, ErrNoPlanner
	}
	if strings.TrimSpace(task) == "" {
		return nil, build.ErrEmptyTask
	}

	plan, err := c.opts.Planner.Plan(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("plan roster: %w", err)
	}

	var coding bool
	if opts.Coding != nil {
		coding = *opts.Coding
	} else if coding, err = c.opts.Planner.NeedsCoding(ctx, task); err != nil {
		return nil, fmt.Errorf("decide coding: %w", err)
	}

	cfg := &build.Config{
		BuildingTask:         task,
		AgentConfigs:         plan.Agents,
		ManagerSystemMessage: plan.ManagerSystemMessage,
		Coding:               coding,
		DefaultLLMConfig:     opts.DefaultLLMConfig,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.apply(ctx, cfg); err != nil {
		return nil, err
	}
	return c.Config(), nil
}

// Load restores a roster saved by Save without consulting the planner.
func (c *Crew) Load(ctx context.Context, path string) (*build.Config, error) {
	cfg, err := build.Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.apply(ctx, cfg); err != nil {
		return nil, err
	}
	c.logger.Info("loaded build config", "path", path, "agents", len(cfg.AgentConfigs))
	return c.Config(), nil
}

// Save persists the current build config. An empty path selects the
// task-derived default inside Options.ConfigDir.
func (c *Crew) Save(path string) (string, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()
	if cfg == nil {
		return "", ErrNotBuilt
	}
	if path == "" {
		path = build.DefaultPath(c.opts.ConfigDir, cfg.BuildingTask)
	}
	written, err := build.Save(cfg, path)
	if err != nil {
		return "", err
	}
	c.logger.Info("saved build config", "path", written)
	return written, nil
}

// Config returns a copy of the current build config, or nil.
func (c *Crew) Config() *build.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return nil
	}
	cfg := *c.cfg
	cfg.AgentConfigs = append([]build.AgentSpec(nil), c.cfg.AgentConfigs...)
	return &cfg
}

// Participants returns the chat participants in speaking order.
func (c *Crew) Participants() []core.ChatAgent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants()
}

func (c *Crew) participants() []core.ChatAgent {
	out := make([]core.ChatAgent, 0, len(c.members)+1)
	for _, m := range c.members {
		out = append(out, m)
	}
	if c.userProxy != nil {
		out = append(out, c.userProxy)
	}
	return out
}

// Start runs a group chat over the roster. The task is authored by the user
// proxy for coding tasks and by the first assistant otherwise.
func (c *Crew) Start(ctx context.Context, task string, opts StartOptions) (*groupchat.Result, error) {
	c.mu.Lock()
	cfg := c.cfg
	agents := c.participants()
	c.mu.Unlock()
	if cfg == nil {
		return nil, ErrNotBuilt
	}

	selector := opts.Selector
	if selector == nil && c.opts.ManagerModel != nil {
		s := groupchat.NewModelSelector(c.opts.ManagerModel)
		s.Prompt = managerMessage(cfg) + "\n\n" + groupchat.DefaultSelectPrompt
		s.Logger = c.opts.Logger
		selector = s
	}

	gc, err := groupchat.New(agents, func(o *groupchat.Options) {
		if opts.MaxRound > 0 {
			o.MaxRound = opts.MaxRound
		} else {
			o.MaxRound = 12
		}
		if selector != nil {
			o.Selector = selector
		}
		if opts.Termination != nil {
			o.Termination = opts.Termination
		}
		if opts.Retry.MaxAttempts > 0 {
			o.Retry = opts.Retry
		}
		o.Initiator = cfg.Initiator()
		o.TurnTimeout = opts.TurnTimeout
		o.OnMessage = opts.OnMessage
		o.Logger = c.opts.Logger
	})
	if err != nil {
		return nil, err
	}

	res, runErr := gc.Run(ctx, task, opts.InitMessages...)
	if opts.Transcript != "" && res != nil {
		if _, err := groupchat.WriteTranscript(c.opts.Store, res.ChatID, opts.Transcript, res); err != nil {
			return res, errors.Join(runErr, err)
		}
	}
	return res, runErr
}

// Close clears the crew's agents and releases their endpoints.
func (c *Crew) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.clear()
	c.cfg = nil
	return err
}

// apply provisions every assistant of cfg. Build and Load share it, so a
// restored crew has the same shape as a freshly built one.
func (c *Crew) apply(ctx context.Context, cfg *build.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.clear(); err != nil {
		return err
	}
	c.cfg = nil

	sampling := cfg.Sampling()
	members := make([]*agent.AssistantAgent, 0, len(cfg.AgentConfigs))
	for _, spec := range cfg.Roster() {
		switch spec.Kind {
		case build.KindAssistant:
			a, err := c.opts.Manager.CreateAgent(ctx, spec.Name, spec.Model, endpoint.AgentOptions{
				SystemMessage: spec.SystemMessage,
				Sampling:      sampling,
			})
			if err != nil {
				c.members = members
				return errors.Join(err, c.clear())
			}
			members = append(members, a)
		case build.KindUserProxy:
			c.userProxy = c.newUserProxy(spec)
		}
	}

	c.members = members
	c.cfg = cfg
	c.logger.Info("crew ready", "task", cfg.BuildingTask, "agents", len(members), "coding", cfg.Coding)
	return nil
}

func (c *Crew) newUserProxy(spec build.AgentSpec) *agent.UserProxyAgent {
	return agent.NewUserProxyAgent(spec.Name, func(o *agent.UserProxyOptions) {
		o.Description = spec.SystemMessage
		o.Mode = agent.InputTerminate
		o.Input = c.opts.Input
		o.Output = c.opts.Output
		o.Patience = c.opts.HumanPatience
		o.Executor = c.opts.Executor
		o.Logger = c.opts.Logger
	})
}

// clear must be called with c.mu held.
func (c *Crew) clear() error {
	var errs []error
	for _, m := range c.members {
		if err := c.opts.Manager.ClearAgent(m.Name()); err != nil && !errors.Is(err, endpoint.ErrUnknownAgent) {
			errs = append(errs, err)
		}
	}
	c.members = nil
	c.userProxy = nil
	return errors.Join(errs...)
}

func managerMessage(cfg *build.Config) string {
	if cfg.ManagerSystemMessage != "" {
		return cfg.ManagerSystemMessage
	}
	return build.DefaultManagerSystemMessage
}

// ConsoleIO returns an input provider and output sink bound to the process
// terminal.
func ConsoleIO() (agent.InputProvider, agent.OutputSink) {
	return agent.NewConsoleInput(os.Stdin, os.Stdout), agent.NewWriterSink(os.Stdout)
}
