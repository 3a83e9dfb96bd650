package build

import (
	"crypto/md5"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/internal/util"
	"github.com/hupe1980/agentcrew/model"
)

// DefaultManagerSystemMessage is used when a plan names no manager message.
const DefaultManagerSystemMessage = "Group chat manager."

// Names of the roster entries derived from a Config.
const (
	UserProxyName = "User_proxy"
	ManagerName   = "chat_manager"
)

//go:embed schema.json
var configSchema []byte

// AgentKind tags the variants of AgentSpec.
type AgentKind string

const (
	KindAssistant AgentKind = "assistant"
	KindUserProxy AgentKind = "user_proxy"
	KindManager   AgentKind = "manager"
)

// AgentSpec describes one roster entry. Files only carry assistants; the
// other kinds are derived by Config.Roster.
type AgentSpec struct {
	Name          string    `json:"name"`
	Model         string    `json:"model"`
	SystemMessage string    `json:"system_message"`
	Kind          AgentKind `json:"-"`
}

// Config is the persisted outcome of a build.
type Config struct {
	BuildingTask         string         `json:"building_task"`
	AgentConfigs         []AgentSpec    `json:"agent_configs"`
	ManagerSystemMessage string         `json:"manager_system_message"`
	Coding               bool           `json:"coding"`
	DefaultLLMConfig     map[string]any `json:"default_llm_config"`
}

// ErrEmptyTask is returned for a config whose building task is blank.
var ErrEmptyTask = errors.New("build: building task is empty")

// Validate checks the invariants Save and Load share, including those the
// schema cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BuildingTask) == "" {
		return ErrEmptyTask
	}
	if len(c.AgentConfigs) == 0 {
		return errors.New("build: config has no agents")
	}
	seen := make(map[string]bool, len(c.AgentConfigs))
	for i, a := range c.AgentConfigs {
		if a.Name == "" || a.Model == "" {
			return fmt.Errorf("build: agent %d needs a name and a model", i)
		}
		if a.Name == UserProxyName && c.Coding {
			return fmt.Errorf("build: agent name %q is reserved", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("build: duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Roster returns every participant in speaking order: the assistants, then
// the user proxy when the task needs coding, and finally the manager.
func (c *Config) Roster() []AgentSpec {
	out := make([]AgentSpec, 0, len(c.AgentConfigs)+2)
	for _, a := range c.AgentConfigs {
		a.Kind = KindAssistant
		out = append(out, a)
	}
	if c.Coding {
		out = append(out, AgentSpec{Name: UserProxyName, SystemMessage: "A human admin.", Kind: KindUserProxy})
	}
	msg := c.ManagerSystemMessage
	if msg == "" {
		msg = DefaultManagerSystemMessage
	}
	return append(out, AgentSpec{Name: ManagerName, SystemMessage: msg, Kind: KindManager})
}

// Initiator returns the name that opens the chat: the user proxy when
// coding, otherwise the first assistant.
func (c *Config) Initiator() string {
	if c.Coding {
		return UserProxyName
	}
	if len(c.AgentConfigs) == 0 {
		return "user"
	}
	return c.AgentConfigs[0].Name
}

// Sampling extracts the sampling parameters of DefaultLLMConfig.
func (c *Config) Sampling() model.Sampling {
	var s model.Sampling
	if v, ok := number(c.DefaultLLMConfig["temperature"]); ok {
		s.Temperature = model.Float(v)
	}
	if v, ok := number(c.DefaultLLMConfig["top_p"]); ok {
		s.TopP = model.Float(v)
	}
	if v, ok := number(c.DefaultLLMConfig["seed"]); ok {
		s.Seed = model.Int(int64(v))
	}
	if v, ok := number(c.DefaultLLMConfig["max_tokens"]); ok {
		s.MaxTokens = int64(v)
	}
	return s
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// DefaultPath returns the file a config for task is saved to inside dir:
// save_config_<md5 of task>.json.
func DefaultPath(dir, task string) string {
	return filepath.Join(dir, fmt.Sprintf("save_config_%x.json", md5.Sum([]byte(task))))
}

// Save writes cfg as indented JSON to path, or to DefaultPath in the working
// directory when path is empty. It returns the path written. A config that
// Load would reject is not written.
func Save(cfg *Config, path string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if path == "" {
		path = DefaultPath(".", cfg.BuildingTask)
	}
	if cfg.DefaultLLMConfig == nil {
		c := *cfg
		c.DefaultLLMConfig = map[string]any{}
		cfg = &c
	}
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode build config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write build config: %w", err)
	}
	return path, nil
}

// Load reads and validates a config saved by Save. A missing file yields a
// *core.ConfigNotFoundError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.ConfigNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("read build config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a build config document.
func Parse(data []byte) (*Config, error) {
	if err := util.ValidateDocument(configSchema, data); err != nil {
		return nil, fmt.Errorf("invalid build config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode build config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
