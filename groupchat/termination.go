package groupchat

import (
	"strings"

	"github.com/hupe1980/agentcrew/core"
)

// DefaultMarker is the phrase that ends a conversation by default.
const DefaultMarker = "TERMINATE"

// TerminationView is what a TerminationCondition sees after each round:
// the new message, its index and the full history including it.
type TerminationView struct {
	Message core.Message
	Index   int
	History []core.Message
}

// TerminationCondition decides whether a conversation reached a valid
// stopping point. Check returns the index into v.History of the message that
// satisfied it; the author of that message decides whether the run counts
// as a success.
type TerminationCondition interface {
	Check(v TerminationView) (int, bool)
}

// TerminationFunc adapts a predicate over the newest message to
// TerminationCondition.
type TerminationFunc func(v TerminationView) bool

// Check implements TerminationCondition.
func (f TerminationFunc) Check(v TerminationView) (int, bool) { return v.Index, f(v) }

// MarkerCondition matches when the new message contains Marker and was not
// authored by a human.
type MarkerCondition struct {
	Marker string
}

// NewMarkerCondition returns the default "TERMINATE" condition.
func NewMarkerCondition() MarkerCondition { return MarkerCondition{Marker: DefaultMarker} }

// Check implements TerminationCondition.
func (c MarkerCondition) Check(v TerminationView) (int, bool) {
	marker := c.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	return v.Index, !v.Message.Role.IsHuman() && strings.Contains(v.Message.Content, marker)
}

// OffsetMarkerCondition inspects the message at Offset relative to the end
// of the history (-1 is the newest message) and matches when it has Role and
// contains Marker. Scripted environments that announce success a fixed
// number of messages before the final reply use it.
type OffsetMarkerCondition struct {
	Marker string
	Offset int
	Role   core.Role
}

// Check implements TerminationCondition.
func (c OffsetMarkerCondition) Check(v TerminationView) (int, bool) {
	i := len(v.History) + c.Offset
	if c.Offset >= 0 || i < 0 {
		return 0, false
	}
	m := v.History[i]
	if c.Role != "" && m.Role != c.Role {
		return 0, false
	}
	return i, strings.Contains(m.Content, c.Marker)
}

// MaxMessagesCondition matches once the history holds at least N messages.
type MaxMessagesCondition struct {
	N int
}

// Check implements TerminationCondition.
func (c MaxMessagesCondition) Check(v TerminationView) (int, bool) {
	return v.Index, c.N > 0 && len(v.History) >= c.N
}

// AnyOf matches when any of the conditions matches, reporting the match of
// the first one in order.
func AnyOf(conds ...TerminationCondition) TerminationCondition {
	return anyOf(conds)
}

type anyOf []TerminationCondition

func (a anyOf) Check(v TerminationView) (int, bool) {
	for _, c := range a {
		if i, ok := c.Check(v); ok {
			return i, true
		}
	}
	return 0, false
}
