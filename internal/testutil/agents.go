package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentcrew/core"
)

// Turn scripts one response of a ScriptedAgent.
type Turn struct {
	Events []core.Event
	Err    error
	Delay  time.Duration
}

// Call records the input of one ScriptedAgent turn.
type Call struct {
	Messages []core.Message
	Opts     core.TurnOptions
}

// ScriptedAgent is a core.ChatAgent replaying scripted turns. When the script
// runs out it answers with Fallback, or "ok" if Fallback is nil.
type ScriptedAgent struct {
	AgentName string
	Types     []core.MessageType
	Fallback  func(n int, messages []core.Message) Turn
	Gauge     *Gauge

	mu     sync.Mutex
	script []Turn
	calls  []Call
	resets int
}

// NewScriptedAgent creates an agent that produces text messages.
func NewScriptedAgent(name string, turns ...Turn) *ScriptedAgent {
	return &ScriptedAgent{
		AgentName: name,
		Types:     []core.MessageType{core.MessageTypeText},
		script:    turns,
	}
}

// Say scripts a turn answering with a single text response.
func Say(source, text string) Turn {
	return Turn{Events: []core.Event{Reply(source, text)}}
}

// Name implements core.ChatAgent.
func (s *ScriptedAgent) Name() string { return s.AgentName }

// Description implements core.ChatAgent.
func (s *ScriptedAgent) Description() string { return "scripted agent " + s.AgentName }

// ProducedMessageTypes implements core.ChatAgent.
func (s *ScriptedAgent) ProducedMessageTypes() []core.MessageType { return s.Types }

// Reset implements core.ChatAgent.
func (s *ScriptedAgent) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

// Calls returns every turn input received so far.
func (s *ScriptedAgent) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Resets returns how often Reset was called.
func (s *ScriptedAgent) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// OnMessagesStream implements core.ChatAgent.
func (s *ScriptedAgent) OnMessagesStream(ctx context.Context, messages []core.Message, opts core.TurnOptions) (<-chan core.Event, <-chan error) {
	events := make(chan core.Event, 8)
	errCh := make(chan error, 1)

	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, Call{Messages: append([]core.Message(nil), messages...), Opts: opts})
	var turn Turn
	switch {
	case len(s.script) > 0:
		turn = s.script[0]
		s.script = s.script[1:]
	case s.Fallback != nil:
		turn = s.Fallback(n, messages)
	default:
		turn = Say(s.AgentName, "ok")
	}
	s.mu.Unlock()

	go func() {
		defer close(events)
		defer close(errCh)

		if s.Gauge != nil {
			s.Gauge.Enter()
			defer s.Gauge.Exit()
		}
		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		for _, ev := range turn.Events {
			select {
			case events <- ev:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if turn.Err != nil {
			errCh <- turn.Err
		}
	}()

	return events, errCh
}

// Gauge tracks the number of concurrently active sections and the peak.
type Gauge struct {
	mu      sync.Mutex
	current int
	peak    int
}

// Enter marks a section as active.
func (g *Gauge) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
}

// Exit marks a section as finished.
func (g *Gauge) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current--
}

// Peak returns the highest number of simultaneously active sections.
func (g *Gauge) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
