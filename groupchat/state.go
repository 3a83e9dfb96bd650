package groupchat

import (
	"github.com/hupe1980/agentcrew/core"
)

// Phase is the orchestrator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelectingSpeaker
	PhaseAwaitingReply
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelectingSpeaker:
		return "selecting_speaker"
	case PhaseAwaitingReply:
		return "awaiting_reply"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason explains why a conversation ended.
type Reason string

const (
	// ReasonTerminated means the termination condition matched.
	ReasonTerminated Reason = "terminated"
	// ReasonMaxRound means the round limit was reached.
	ReasonMaxRound Reason = "max_round"
	// ReasonStopped means a participant sent a stop message.
	ReasonStopped Reason = "stopped"
	// ReasonFailed means a turn failed after exhausting its attempts.
	ReasonFailed Reason = "failed"
	// ReasonProtocolError means an agent broke the response stream contract.
	ReasonProtocolError Reason = "protocol_error"
	// ReasonCanceled means the caller's context ended the conversation.
	ReasonCanceled Reason = "canceled"
)

// State is the conversation state. Only the orchestrator mutates it.
type State struct {
	Messages   []core.Message
	Round      int
	MaxRound   int
	Terminated bool
	Reason     Reason
}

func (s *State) append(m core.Message) {
	s.Messages = append(s.Messages, m)
}

func (s *State) snapshot() []core.Message {
	return append([]core.Message(nil), s.Messages...)
}

// Result is the outcome of a group chat run.
type Result struct {
	ChatID   string
	Messages []core.Message
	Rounds   int
	Speakers []string
	Reason   Reason
	Err      error
	// Matched is the message the termination condition matched on. It is
	// set only when Reason is ReasonTerminated.
	Matched *core.Message
}

// Succeeded reports whether the conversation ended because the termination
// condition matched on a message not authored by a human.
func (r *Result) Succeeded() bool {
	if r == nil || r.Reason != ReasonTerminated || r.Matched == nil {
		return false
	}
	return !r.Matched.Role.IsHuman()
}

// Usage sums the token usage of all messages.
func (r *Result) Usage() core.Usage {
	var u core.Usage
	for _, m := range r.Messages {
		if m.Usage != nil {
			u.PromptTokens += m.Usage.PromptTokens
			u.CompletionTokens += m.Usage.CompletionTokens
		}
	}
	return u
}
