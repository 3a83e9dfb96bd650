package groupchat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
)

// Participant describes one roster entry to a selector.
type Participant struct {
	Name        string
	Description string
}

// SelectionView is the information a Selector decides on.
type SelectionView struct {
	Participants []Participant
	Messages     []core.Message
	LastSpeaker  string
	Round        int
}

// Selector picks the next speaker by name.
type Selector interface {
	Select(ctx context.Context, v SelectionView) (string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, v SelectionView) (string, error)

// Select implements Selector.
func (f SelectorFunc) Select(ctx context.Context, v SelectionView) (string, error) { return f(ctx, v) }

// RoundRobinSelector picks the participant after the last speaker in roster
// order. When the last speaker is not a participant (e.g. the initiator of
// the task) it starts with the first participant.
type RoundRobinSelector struct{}

// Select implements Selector.
func (RoundRobinSelector) Select(_ context.Context, v SelectionView) (string, error) {
	if len(v.Participants) == 0 {
		return "", fmt.Errorf("no participants")
	}
	for i, p := range v.Participants {
		if p.Name == v.LastSpeaker {
			return v.Participants[(i+1)%len(v.Participants)].Name, nil
		}
	}
	return v.Participants[0].Name, nil
}

// DefaultSelectPrompt is the system message of ModelSelector. It is rendered
// with .Roles (one "name: description" line per participant) and .Names.
const DefaultSelectPrompt = `You are in a role play game. The following roles are available:
{{.Roles}}.

Read the following conversation.
Then select the next role from [{{join ", " .Names}}] to play. Only return the role.`

// ModelSelector asks a model for the next speaker. When the answer names no
// participant, or more than one, it falls back to Fallback.
type ModelSelector struct {
	Model    model.Model
	Prompt   string
	Fallback Selector
	Logger   logging.Logger
}

// NewModelSelector creates a ModelSelector with round robin fallback.
func NewModelSelector(m model.Model) *ModelSelector {
	return &ModelSelector{
		Model:    m,
		Prompt:   DefaultSelectPrompt,
		Fallback: RoundRobinSelector{},
		Logger:   logging.NoOpLogger{},
	}
}

// Select implements Selector.
func (s *ModelSelector) Select(ctx context.Context, v SelectionView) (string, error) {
	logger := logging.OrNoOp(s.Logger)
	fallback := s.Fallback
	if fallback == nil {
		fallback = RoundRobinSelector{}
	}

	names := make([]string, len(v.Participants))
	roles := make([]string, len(v.Participants))
	for i, p := range v.Participants {
		names[i] = p.Name
		roles[i] = p.Name + ": " + p.Description
	}

	system, err := util.RenderTemplate(s.Prompt, map[string]any{
		"Roles": strings.Join(roles, "\n"),
		"Names": names,
	})
	if err != nil {
		return "", fmt.Errorf("render selector prompt: %w", err)
	}

	msgs := append([]core.Message(nil), v.Messages...)
	msgs = append(msgs, core.NewTextMessage("", core.RoleSystem,
		fmt.Sprintf("Read the above conversation. Then select the next role from [%s] to play. Only return the role.", strings.Join(names, ", "))))

	resp, err := model.Complete(ctx, s.Model, model.Request{SystemMessage: system, Messages: msgs})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("speaker selection failed, using fallback", "error", err)
		return fallback.Select(ctx, v)
	}

	if name, ok := mentionedOnce(resp.Text, names); ok {
		return name, nil
	}
	logger.Debug("speaker selection ambiguous, using fallback", "reply", resp.Text)
	return fallback.Select(ctx, v)
}

// mentionedOnce returns the single participant name mentioned in text.
func mentionedOnce(text string, names []string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, n := range names {
		if strings.TrimSpace(text) == n {
			return n, true
		}
	}

	var found string
	for _, n := range names {
		if mentions(text, n) {
			if found != "" {
				return "", false
			}
			found = n
		}
	}
	return found, found != ""
}

// mentions reports whether name occurs in text as a whole word, i.e. not
// directly preceded or followed by a letter, digit or underscore.
func mentions(text, name string) bool {
	if name == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(name)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
