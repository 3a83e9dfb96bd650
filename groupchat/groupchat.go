package groupchat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/router"
)

// ErrTurnInProgress is returned when a second reply would be requested while
// one is still outstanding.
var ErrTurnInProgress = errors.New("groupchat: a turn is already in progress")

// ErrUnknownSpeaker is returned when a selector names no participant.
var ErrUnknownSpeaker = errors.New("groupchat: unknown speaker")

// RetryPolicy bounds how often a failed turn is re-requested from the same
// speaker. Every attempt uses a distinct seed: Seeds in order, then random
// ones. Protocol errors are never retried.
type RetryPolicy struct {
	MaxAttempts int
	Seeds       []int64
}

// Options configures a GroupChat.
type Options struct {
	// MaxRound bounds the number of completed turns.
	MaxRound    int
	Selector    Selector
	Termination TerminationCondition
	Retry       RetryPolicy
	// Router is shared with other chats when set; otherwise each run owns one.
	Router *router.Router
	// Initiator authors the task message.
	Initiator string
	// TurnTimeout bounds one attempt. 0 disables the bound.
	TurnTimeout time.Duration
	// OnProgress receives non-terminal agent events (tool traffic).
	OnProgress func(ev ProgressEvent)
	// OnMessage receives every message appended to the conversation.
	OnMessage func(m core.Message)
	Logger    logging.Logger
}

// GroupChat orchestrates turn-based conversations between agents.
type GroupChat struct {
	id     string
	agents []core.ChatAgent
	opts   Options
	logger logging.Logger

	mu          sync.Mutex
	phase       Phase
	outstanding string // turn ID awaiting a reply, "" if none
	state       State
}

// New creates a GroupChat. Agent names must be unique.
func New(agents []core.ChatAgent, optFns ...func(o *Options)) (*GroupChat, error) {
	opts := Options{
		MaxRound:    10,
		Selector:    RoundRobinSelector{},
		Termination: NewMarkerCondition(),
		Retry:       RetryPolicy{MaxAttempts: 1},
		Initiator:   "user",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(agents) == 0 {
		return nil, errors.New("groupchat: no agents")
	}
	if opts.MaxRound <= 0 {
		return nil, fmt.Errorf("groupchat: max round must be positive, got %d", opts.MaxRound)
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if seen[a.Name()] {
			return nil, fmt.Errorf("groupchat: duplicate agent name %q", a.Name())
		}
		seen[a.Name()] = true
	}

	id := core.NewID()
	return &GroupChat{
		id:     id,
		agents: append([]core.ChatAgent(nil), agents...),
		opts:   opts,
		logger: logging.With(logging.OrNoOp(opts.Logger), "component", "groupchat", "chat", id),
	}, nil
}

// ID returns the chat identifier.
func (g *GroupChat) ID() string { return g.id }

// Agents returns the roster in speaking order.
func (g *GroupChat) Agents() []core.ChatAgent { return append([]core.ChatAgent(nil), g.agents...) }

// Phase returns the current orchestrator state.
func (g *GroupChat) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// State returns a snapshot of the conversation state.
func (g *GroupChat) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state
	s.Messages = g.state.snapshot()
	return s
}

// Reset clears the conversation memory of every agent.
func (g *GroupChat) Reset(ctx context.Context) error {
	var errs []error
	for _, a := range g.agents {
		if err := a.Reset(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Run starts a conversation about task and drives it to termination. The
// returned Result is never nil; err is set when the conversation ended
// abnormally (protocol error, exhausted retries, cancellation).
func (g *GroupChat) Run(ctx context.Context, task string, initMessages ...core.Message) (*Result, error) {
	g.mu.Lock()
	if g.phase == PhaseSelectingSpeaker || g.phase == PhaseAwaitingReply {
		g.mu.Unlock()
		return &Result{ChatID: g.id}, ErrTurnInProgress
	}
	g.phase = PhaseSelectingSpeaker
	g.outstanding = ""
	g.state = State{MaxRound: g.opts.MaxRound}
	g.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := g.opts.Router
	if r == nil {
		r = router.New(func(o *router.Options) { o.Logger = g.opts.Logger })
		defer r.Close()
	}

	inbox := make(chan any, 4)
	unsubscribe, err := g.wire(runCtx, r, inbox)
	// Cancel before unsubscribing so a container blocked in a turn returns.
	defer unsubscribe()
	defer cancel()
	if err != nil {
		return g.finish(ReasonFailed, err, nil)
	}

	for _, m := range initMessages {
		if err := g.post(runCtx, r, m); err != nil {
			return g.finish(ReasonFailed, err, nil)
		}
	}
	if task != "" {
		if err := g.post(runCtx, r, core.NewTextMessage(g.opts.Initiator, core.RoleUser, task)); err != nil {
			return g.finish(ReasonFailed, err, nil)
		}
	}

	g.logger.Info("group chat started", "agents", len(g.agents), "max_round", g.opts.MaxRound)

	var speakers []string
	lastSpeaker := g.opts.Initiator
	if n := len(initMessages); task == "" && n > 0 {
		lastSpeaker = initMessages[n-1].Source
	}

	for {
		g.setPhase(PhaseSelectingSpeaker)

		speaker, err := g.selectSpeaker(runCtx, lastSpeaker)
		if err != nil {
			return g.finish(reasonFor(runCtx, ReasonFailed), err, speakers)
		}

		resp, err := g.turn(runCtx, r, inbox, speaker)
		if err != nil {
			reason := ReasonFailed
			var perr *core.ProtocolError
			if errors.As(err, &perr) {
				reason = ReasonProtocolError
			}
			return g.finish(reasonFor(runCtx, reason), err, speakers)
		}

		speakers = append(speakers, speaker)
		lastSpeaker = speaker
		msg := resp.Message

		g.mu.Lock()
		g.state.Round++
		g.state.append(msg)
		view := TerminationView{Message: msg, Index: len(g.state.Messages) - 1, History: g.state.snapshot()}
		round := g.state.Round
		g.mu.Unlock()

		if g.opts.OnMessage != nil {
			g.opts.OnMessage(msg)
		}
		g.logger.Debug("round completed", "round", round, "speaker", speaker)

		if err := r.Publish(runCtx, scoped(g.id, GroupTopic), router.Envelope{Source: speaker, Payload: PublishEvent{Message: msg}}); err != nil {
			return g.finish(reasonFor(runCtx, ReasonFailed), err, speakers)
		}

		if msg.Type == core.MessageTypeStop {
			return g.finish(ReasonStopped, nil, speakers)
		}
		if g.opts.Termination != nil {
			if i, ok := g.opts.Termination.Check(view); ok {
				if i < 0 || i >= len(view.History) {
					i = view.Index
				}
				res, err := g.finish(ReasonTerminated, nil, speakers)
				matched := view.History[i]
				res.Matched = &matched
				return res, err
			}
		}
		if round >= g.opts.MaxRound {
			return g.finish(ReasonMaxRound, nil, speakers)
		}
	}
}

// wire subscribes every container and the orchestrator inbox.
func (g *GroupChat) wire(ctx context.Context, r *router.Router, inbox chan<- any) (func(), error) {
	var unsubs []func()
	unsubscribe := func() {
		for i := len(unsubs) - 1; i >= 0; i-- {
			unsubs[i]()
		}
	}

	for _, a := range g.agents {
		c := NewContainer(g.id, a, r, g.opts.Logger)
		u, err := c.Subscribe()
		if err != nil {
			return unsubscribe, fmt.Errorf("subscribe container %s: %w", a.Name(), err)
		}
		unsubs = append(unsubs, u)
	}

	u, err := r.Subscribe(scoped(g.id, ParentTopic), g.id+"/manager", func(_ context.Context, env router.Envelope) error {
		select {
		case inbox <- env.Payload:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return unsubscribe, fmt.Errorf("subscribe manager: %w", err)
	}
	unsubs = append(unsubs, u)

	if g.opts.OnProgress != nil {
		onProgress := g.opts.OnProgress
		u, err := r.Subscribe(scoped(g.id, OutputTopic), g.id+"/output", func(_ context.Context, env router.Envelope) error {
			if ev, ok := env.Payload.(ProgressEvent); ok {
				onProgress(ev)
			}
			return nil
		})
		if err != nil {
			return unsubscribe, fmt.Errorf("subscribe output: %w", err)
		}
		unsubs = append(unsubs, u)
	}

	return unsubscribe, nil
}

// post appends a message that does not count as a round and shares it with
// every container, its author's included.
func (g *GroupChat) post(ctx context.Context, r *router.Router, m core.Message) error {
	g.mu.Lock()
	g.state.append(m)
	g.mu.Unlock()

	if g.opts.OnMessage != nil {
		g.opts.OnMessage(m)
	}
	return r.Publish(ctx, scoped(g.id, GroupTopic), router.Envelope{Source: m.Source, Payload: PublishEvent{Message: m, Seeded: true}})
}

func (g *GroupChat) selectSpeaker(ctx context.Context, last string) (string, error) {
	g.mu.Lock()
	view := SelectionView{
		Messages:    g.state.snapshot(),
		LastSpeaker: last,
		Round:       g.state.Round,
	}
	g.mu.Unlock()
	for _, a := range g.agents {
		view.Participants = append(view.Participants, Participant{Name: a.Name(), Description: a.Description()})
	}

	sel := g.opts.Selector
	if sel == nil {
		sel = RoundRobinSelector{}
	}
	name, err := sel.Select(ctx, view)
	if err != nil {
		return "", fmt.Errorf("select speaker: %w", err)
	}
	for _, p := range view.Participants {
		if p.Name == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSpeaker, name)
}

// turn requests one reply from speaker, retrying failed attempts.
func (g *GroupChat) turn(ctx context.Context, r *router.Router, inbox <-chan any, speaker string) (core.Response, error) {
	seeds := newSeedSequence(g.opts.Retry.Seeds)

	var lastErr error
	for attempt := 1; attempt <= g.opts.Retry.MaxAttempts; attempt++ {
		turnID, err := g.begin()
		if err != nil {
			return core.Response{}, err
		}

		seed := seeds.next(attempt)
		resp, err := g.await(ctx, r, inbox, speaker, RequestEvent{TurnID: turnID, Attempt: attempt, Seed: seed})
		g.end(turnID)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		var perr *core.ProtocolError
		if errors.As(err, &perr) || ctx.Err() != nil {
			return core.Response{}, err
		}
		g.logger.Warn("turn attempt failed", "speaker", speaker, "attempt", attempt, "max_attempts", g.opts.Retry.MaxAttempts, "error", err)
	}
	return core.Response{}, fmt.Errorf("speaker %s failed after %d attempts: %w", speaker, g.opts.Retry.MaxAttempts, lastErr)
}

// begin claims the single outstanding-reply slot.
func (g *GroupChat) begin() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outstanding != "" {
		return "", ErrTurnInProgress
	}
	g.outstanding = core.NewID()
	g.phase = PhaseAwaitingReply
	return g.outstanding, nil
}

func (g *GroupChat) end(turnID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outstanding == turnID {
		g.outstanding = ""
	}
}

func (g *GroupChat) await(ctx context.Context, r *router.Router, inbox <-chan any, speaker string, req RequestEvent) (core.Response, error) {
	parent := ctx
	if g.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.TurnTimeout)
		defer cancel()
	}

	if err := r.Publish(ctx, requestTopic(g.id, speaker), router.Envelope{Source: g.id, Payload: req}); err != nil {
		return core.Response{}, err
	}

	for {
		select {
		case p := <-inbox:
			switch ev := p.(type) {
			case ResponseEvent:
				if ev.TurnID == req.TurnID {
					return ev.Response, nil
				}
			case TurnFailedEvent:
				if ev.TurnID == req.TurnID {
					return core.Response{}, ev.Err
				}
			}
			g.logger.Debug("dropping stale turn event", "type", fmt.Sprintf("%T", p))
		case <-ctx.Done():
			if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return core.Response{}, &core.TimeoutError{Op: "turn of " + speaker, After: g.opts.TurnTimeout}
			}
			return core.Response{}, ctx.Err()
		}
	}
}

func (g *GroupChat) setPhase(p Phase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = p
}

func (g *GroupChat) finish(reason Reason, err error, speakers []string) (*Result, error) {
	g.mu.Lock()
	g.phase = PhaseTerminated
	g.outstanding = ""
	g.state.Terminated = true
	g.state.Reason = reason
	res := &Result{
		ChatID:   g.id,
		Messages: g.state.snapshot(),
		Rounds:   g.state.Round,
		Speakers: speakers,
		Reason:   reason,
		Err:      err,
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Error("group chat ended", "reason", string(reason), "rounds", res.Rounds, "error", err)
	} else {
		g.logger.Info("group chat ended", "reason", string(reason), "rounds", res.Rounds)
	}
	return res, err
}

func reasonFor(ctx context.Context, fallback Reason) Reason {
	if ctx.Err() != nil {
		return ReasonCanceled
	}
	return fallback
}

// seedSequence hands out distinct seeds: configured ones first, then random.
// The first attempt carries no seed unless one is configured.
type seedSequence struct {
	fixed []int64
	used  map[int64]bool
}

func newSeedSequence(fixed []int64) *seedSequence {
	return &seedSequence{fixed: fixed, used: make(map[int64]bool)}
}

func (s *seedSequence) next(attempt int) *int64 {
	if attempt-1 < len(s.fixed) {
		v := s.fixed[attempt-1]
		s.used[v] = true
		return &v
	}
	if attempt == 1 {
		return nil
	}
	for {
		v := rand.Int64N(1 << 31)
		if !s.used[v] {
			s.used[v] = true
			return &v
		}
	}
}
