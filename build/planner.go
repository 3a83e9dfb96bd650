package build

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/logging"
	"github.com/hupe1980/agentcrew/model"
)

// Plan is a roster proposed for a task.
type Plan struct {
	Agents               []AgentSpec
	ManagerSystemMessage string
}

// Planner designs a roster for a task and decides whether it needs code
// execution.
type Planner interface {
	Plan(ctx context.Context, task string) (Plan, error)
	NeedsCoding(ctx context.Context, task string) (bool, error)
}

// CodingPrompt asks whether a task needs programming. It is rendered with
// .Task.
const CodingPrompt = `Does the following task need programming (i.e., access external API or tool by coding) to solve?

TASK: {{.Task}}

Answer only YES or NO.`

// PlanPrompt asks for a roster as JSON. It is rendered with .Task and
// .MaxAgents.
const PlanPrompt = `You are assembling a team of experts to solve a task in a group chat.

TASK: {{.Task}}

Propose at most {{.MaxAgents}} experts. Give each a short name made of letters, digits and underscores, and a system message describing its role and how it collaborates. Also write a system message for the group chat manager.

Answer with JSON only:
{"agents": [{"name": "...", "system_message": "..."}], "manager_system_message": "..."}`

const planSchema = `{
  "type": "object",
  "required": ["agents"],
  "properties": {
    "agents": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "system_message"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "system_message": {"type": "string"},
          "model": {"type": "string"}
        }
      }
    },
    "manager_system_message": {"type": "string"}
  }
}`

var (
	jsonObject  = regexp.MustCompile(`(?s)\{.*\}`)
	invalidName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// ModelPlanner plans with a model.
type ModelPlanner struct {
	Model model.Model
	// AgentModel backs planned agents that name no model.
	AgentModel string
	MaxAgents  int
	Logger     logging.Logger
}

// NewModelPlanner creates a planner assigning agentModel to the agents it
// plans.
func NewModelPlanner(m model.Model, agentModel string) *ModelPlanner {
	return &ModelPlanner{Model: m, AgentModel: agentModel, MaxAgents: 5, Logger: logging.NoOpLogger{}}
}

// NeedsCoding implements Planner. Only an exact YES counts.
func (p *ModelPlanner) NeedsCoding(ctx context.Context, task string) (bool, error) {
	prompt, err := util.RenderTemplate(CodingPrompt, map[string]any{"Task": task})
	if err != nil {
		return false, err
	}
	resp, err := model.Complete(ctx, p.Model, model.Request{Messages: []core.Message{core.NewTextMessage("user", core.RoleUser, prompt)}})
	if err != nil {
		return false, fmt.Errorf("coding decision: %w", err)
	}
	answer := strings.TrimSpace(resp.Text)
	logging.OrNoOp(p.Logger).Debug("coding decision", "answer", answer)
	return answer == "YES", nil
}

// Plan implements Planner.
func (p *ModelPlanner) Plan(ctx context.Context, task string) (Plan, error) {
	maxAgents := p.MaxAgents
	if maxAgents <= 0 {
		maxAgents = 5
	}
	prompt, err := util.RenderTemplate(PlanPrompt, map[string]any{"Task": task, "MaxAgents": maxAgents})
	if err != nil {
		return Plan{}, err
	}
	resp, err := model.Complete(ctx, p.Model, model.Request{Messages: []core.Message{core.NewTextMessage("user", core.RoleUser, prompt)}})
	if err != nil {
		return Plan{}, fmt.Errorf("plan roster: %w", err)
	}
	return p.parse(resp.Text, maxAgents)
}

type planDoc struct {
	Agents []struct {
		Name          string `json:"name"`
		SystemMessage string `json:"system_message"`
		Model         string `json:"model"`
	} `json:"agents"`
	ManagerSystemMessage string `json:"manager_system_message"`
}

func (p *ModelPlanner) parse(text string, maxAgents int) (Plan, error) {
	raw := jsonObject.FindString(text)
	if raw == "" {
		return Plan{}, fmt.Errorf("plan roster: no JSON object in reply")
	}
	if err := util.ValidateDocument([]byte(planSchema), []byte(raw)); err != nil {
		return Plan{}, fmt.Errorf("plan roster: %w", err)
	}
	var doc planDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Plan{}, fmt.Errorf("plan roster: %w", err)
	}

	plan := Plan{ManagerSystemMessage: doc.ManagerSystemMessage}
	seen := make(map[string]bool)
	for _, a := range doc.Agents {
		if len(plan.Agents) == maxAgents {
			break
		}
		name := strings.Trim(invalidName.ReplaceAllString(strings.TrimSpace(a.Name), "_"), "_")
		if name == "" || seen[name] || name == UserProxyName {
			continue
		}
		seen[name] = true
		m := a.Model
		if m == "" {
			m = p.AgentModel
		}
		plan.Agents = append(plan.Agents, AgentSpec{Name: name, Model: m, SystemMessage: a.SystemMessage, Kind: KindAssistant})
	}
	if len(plan.Agents) == 0 {
		return Plan{}, fmt.Errorf("plan roster: no usable agents")
	}
	if plan.ManagerSystemMessage == "" {
		plan.ManagerSystemMessage = DefaultManagerSystemMessage
	}
	return plan, nil
}

// StaticPlanner returns a fixed plan.
type StaticPlanner struct {
	Roster Plan
	Coding bool
}

// Plan implements Planner.
func (s StaticPlanner) Plan(context.Context, string) (Plan, error) { return s.Roster, nil }

// NeedsCoding implements Planner.
func (s StaticPlanner) NeedsCoding(context.Context, string) (bool, error) { return s.Coding, nil }
