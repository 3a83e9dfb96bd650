package endpoint

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentcrew/agent"
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/tool"
)

// HostedEndpointID is the endpoint shared by all agents of hosted models.
const HostedEndpointID = "hosted"

var (
	// ErrDuplicateAgent is returned when an agent name is already registered.
	ErrDuplicateAgent = errors.New("endpoint: agent already registered")
	// ErrUnknownAgent is returned when clearing an agent that is not registered.
	ErrUnknownAgent = errors.New("endpoint: unknown agent")
)

// Status is the lifecycle state of an endpoint.
type Status int

const (
	StatusStarting Status = iota
	StatusRunning
	StatusFailed
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Record describes one endpoint. Hosted endpoints have no port.
type Record struct {
	ID     string
	Model  string
	Host   string
	Port   int
	Status Status
	Hosted bool

	process Process
}

// BaseURL returns the OpenAI compatible API root of a local endpoint.
func (r Record) BaseURL() string {
	if r.Hosted {
		return ""
	}
	return fmt.Sprintf("http://%s:%d/v1", r.Host, r.Port)
}

// Registration binds an agent name to the endpoint serving it.
type Registration struct {
	Name       string
	Model      string
	EndpointID string
	Agent      *agent.AssistantAgent
}

// Options configures a Manager.
type Options struct {
	Host string
	// PortRangeStart, PortRangeEnd and MaxPorts configure port discovery.
	PortRangeStart int
	PortRangeEnd   int
	MaxPorts       int
	PortProbe      PortProbe
	// BuildTimeout bounds the startup of one serving process.
	BuildTimeout time.Duration
	// WorldSize is the default tensor parallel size of serving processes.
	WorldSize int
	// MaxTokens caps completions of endpoint-backed agents.
	MaxTokens int64
	// HostedPrefixes select models that are served remotely.
	HostedPrefixes []string
	// ConfigList supplies credentials and base URLs per model.
	ConfigList   model.ConfigList
	Command      CommandFunc
	Launcher     Launcher
	Probe        ReadinessProbe
	ModelFactory ModelFactory
	// Resilience wraps every model client in a circuit breaker and rate
	// limiter when set.
	Resilience func(o *model.ResilientOptions)
	Logger     logging.Logger
}

// AgentOptions configures an agent created by the Manager.
type AgentOptions struct {
	SystemMessage string
	Description   string
	Sampling      model.Sampling
	Tools         []tool.Tool
	// WorldSize overrides Options.WorldSize for a newly started endpoint.
	WorldSize int
}

// Manager owns the port pool, the endpoint records and the agent
// registrations. All mutations are serialized by one mutex, so concurrent
// group chats can create and clear agents safely.
type Manager struct {
	opts   Options
	pool   *PortPool
	logger logging.Logger

	mu      sync.Mutex
	records map[string]*Record
	regs    map[string]*Registration
}

// NewManager creates a Manager.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Host:           "localhost",
		PortRangeStart: 8000,
		PortRangeEnd:   65535,
		MaxPorts:       32,
		PortProbe:      ListenProbe,
		BuildTimeout:   180 * time.Second,
		WorldSize:      1,
		MaxTokens:      945,
		HostedPrefixes: []string{"gpt-", "o1", "o3", "claude-"},
		Command:        VLLMCommand,
		ModelFactory:   DefaultModelFactory,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.With(logging.OrNoOp(opts.Logger), "component", "endpoint")
	if opts.Launcher == nil {
		opts.Launcher = ExecLauncher{Logger: logger}
	}
	if opts.Probe == nil {
		probe := NewMarkerProbe()
		probe.OnLine = func(line string) { logger.Debug("server output", "line", line) }
		opts.Probe = probe
	}

	return &Manager{
		opts:   opts,
		logger: logger,
		pool: NewPortPool(opts.Host, func(o *PortPoolOptions) {
			o.RangeStart = opts.PortRangeStart
			o.RangeEnd = opts.PortRangeEnd
			o.MaxPorts = opts.MaxPorts
			o.Probe = opts.PortProbe
			o.Logger = logger
		}),
		records: make(map[string]*Record),
		regs:    make(map[string]*Registration),
	}
}

// Pool returns the port pool.
func (m *Manager) Pool() *PortPool { return m.pool }

// IsHosted reports whether modelID is served remotely.
func (m *Manager) IsHosted(modelID string) bool {
	for _, p := range m.opts.HostedPrefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// EndpointID returns the endpoint an agent of modelID is attached to.
func (m *Manager) EndpointID(modelID string) string {
	if m.IsHosted(modelID) {
		return HostedEndpointID
	}
	return path.Base(modelID) + "_" + m.opts.Host
}

// CreateAgent creates and registers an assistant named name backed by
// modelID. A local model without a running endpoint gets a serving process
// on a free port first; that step fails with a *core.ProvisioningError.
func (m *Manager) CreateAgent(ctx context.Context, name, modelID string, opts AgentOptions) (*agent.AssistantAgent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.regs[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
	}

	id := m.EndpointID(modelID)
	rec, ok := m.records[id]
	if !ok {
		var err error
		if id == HostedEndpointID {
			rec = &Record{ID: id, Status: StatusRunning, Hosted: true}
			m.records[id] = rec
		} else if rec, err = m.provision(ctx, id, modelID, opts.WorldSize); err != nil {
			return nil, err
		}
	}

	spec := ModelSpec{Model: modelID}
	if entry, ok := m.opts.ConfigList.First(modelID); ok {
		spec.APIKey = entry.APIKey
		spec.BaseURL = entry.BaseURL
		spec.APIType = entry.APIType
	}
	if !rec.Hosted {
		spec.BaseURL = rec.BaseURL()
		spec.APIType = "openai"
		spec.MaxTokens = m.opts.MaxTokens
	}

	llm, err := m.opts.ModelFactory(spec)
	if err != nil {
		m.release(id)
		return nil, fmt.Errorf("create model %s: %w", modelID, err)
	}
	if m.opts.Resilience != nil {
		llm = model.NewResilient(llm, func(o *model.ResilientOptions) {
			o.Logger = m.logger
			m.opts.Resilience(o)
		})
	}

	a := agent.NewAssistantAgent(name, llm, func(o *agent.AssistantOptions) {
		o.Description = opts.Description
		if opts.SystemMessage != "" {
			o.Instruction = agent.NewInstructionFromText(opts.SystemMessage)
		}
		o.Sampling = opts.Sampling
		if !rec.Hosted && o.Sampling.MaxTokens == 0 {
			o.Sampling.MaxTokens = m.opts.MaxTokens
		}
		o.Tools = opts.Tools
		o.Logger = m.opts.Logger
	})

	m.regs[name] = &Registration{Name: name, Model: modelID, EndpointID: id, Agent: a}
	m.logger.Info("agent created", "agent", name, "model", modelID, "endpoint", id)
	return a, nil
}

// provision starts a serving process for modelID. The caller holds m.mu.
func (m *Manager) provision(ctx context.Context, id, modelID string, worldSize int) (*Record, error) {
	if worldSize <= 0 {
		worldSize = m.opts.WorldSize
	}
	host := m.opts.Host

	lease, err := m.pool.Acquire()
	if err != nil {
		return nil, &core.ProvisioningError{EndpointID: id, Host: host, Reason: "no port available", Err: err}
	}
	port := lease.Port

	rec := &Record{ID: id, Model: modelID, Host: host, Port: port, Status: StatusStarting}
	m.records[id] = rec

	fail := func(reason string, err error, quarantine bool) (*Record, error) {
		if rec.process != nil {
			if terr := rec.process.Terminate(); terr != nil {
				m.logger.Warn("terminate failed endpoint", "endpoint", id, "error", terr)
			}
		}
		rec.Status = StatusFailed
		delete(m.records, id)
		if quarantine {
			m.pool.Quarantine(port)
		} else {
			m.pool.Return(port)
		}
		m.logger.Error("endpoint provisioning failed", "endpoint", id, "port", port, "reason", reason, "error", err)
		return nil, &core.ProvisioningError{EndpointID: id, Host: host, Port: port, Reason: reason, Err: err}
	}

	cmd := m.opts.Command(host, port, modelID, worldSize)
	lease.Release()
	proc, err := m.opts.Launcher.Launch(cmd)
	if err != nil {
		return fail("launch failed", err, false)
	}
	rec.process = proc

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.BuildTimeout)
	defer cancel()

	start := time.Now()
	switch err := m.opts.Probe.Wait(probeCtx, proc, host, port); {
	case err == nil:
	case errors.Is(err, ErrPortConflict):
		return fail("port already in use", err, true)
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return fail("startup timeout", &core.TimeoutError{Op: "endpoint " + id, After: m.opts.BuildTimeout}, false)
	default:
		return fail("not ready", err, false)
	}

	rec.Status = StatusRunning
	m.logger.Info("endpoint running", "endpoint", id, "model", modelID, "base_url", rec.BaseURL(),
		"world_size", worldSize, "startup", time.Since(start))
	return rec, nil
}

// ClearAgent removes a registration. The endpoint is terminated and its port
// returned when no other agent uses it.
func (m *Manager) ClearAgent(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clear(name)
}

func (m *Manager) clear(name string) error {
	reg, ok := m.regs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	delete(m.regs, name)
	m.logger.Info("agent cleared", "agent", name, "endpoint", reg.EndpointID)
	return m.release(reg.EndpointID)
}

// release tears down an unreferenced local endpoint. The caller holds m.mu.
func (m *Manager) release(id string) error {
	rec, ok := m.records[id]
	if !ok || rec.Hosted || m.refCount(id) > 0 {
		return nil
	}
	delete(m.records, id)

	var err error
	if rec.process != nil {
		if err = rec.process.Terminate(); err != nil {
			err = fmt.Errorf("terminate endpoint %s: %w", id, err)
		}
	}
	rec.Status = StatusTerminated
	m.pool.Return(rec.Port)
	m.logger.Info("endpoint terminated", "endpoint", id, "port", rec.Port)
	return err
}

// ClearAllAgents clears every registration. It is idempotent.
func (m *Manager) ClearAllAgents() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.regs))
	for name := range m.regs {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		if err := m.clear(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close clears all agents and so stops every serving process.
func (m *Manager) Close() error { return m.ClearAllAgents() }

// Agent returns the registered agent with the given name.
func (m *Manager) Agent(name string) (*agent.AssistantAgent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[name]
	if !ok {
		return nil, false
	}
	return reg.Agent, true
}

// RefCount returns the number of agents attached to endpoint id.
func (m *Manager) RefCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount(id)
}

func (m *Manager) refCount(id string) int {
	n := 0
	for _, reg := range m.regs {
		if reg.EndpointID == id {
			n++
		}
	}
	return n
}

// Endpoints returns a snapshot of the endpoint records sorted by id.
func (m *Manager) Endpoints() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		r := *rec
		r.process = nil
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Registrations returns a snapshot of the registrations sorted by name.
func (m *Manager) Registrations() []Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Registration, 0, len(m.regs))
	for _, reg := range m.regs {
		out = append(out, *reg)
	}
	slices.SortFunc(out, func(a, b Registration) int { return strings.Compare(a.Name, b.Name) })
	return out
}
