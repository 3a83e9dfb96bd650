package agent

import "sync"

// BaseAgent is the identity shared by every roster member, plus the lock
// that keeps one agent from running two turns at once. Concrete agents
// embed it.
type BaseAgent struct {
	name string
	desc string

	mu sync.Mutex
}

// NewBaseAgent returns the identity for name. An empty description falls
// back to fallback, so speaker selection always has something to show.
func NewBaseAgent(name, desc, fallback string) BaseAgent {
	if desc == "" {
		desc = fallback
	}
	return BaseAgent{name: name, desc: desc}
}

// Name returns the agent's unique name within a roster.
func (b *BaseAgent) Name() string { return b.name }

// Description returns the role summary shown to speaker selection.
func (b *BaseAgent) Description() string { return b.desc }
