// Package config loads the runtime settings of the agentcrew CLI from an
// optional file and AGENTCREW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGENTCREW_PORTS_START.
const EnvPrefix = "AGENTCREW"

// Settings are the runtime settings.
type Settings struct {
	Host string `mapstructure:"host"`
	// ConfigList is the path of the model credential list.
	ConfigList string `mapstructure:"config_list"`
	// ConfigDir receives saved build configs.
	ConfigDir string `mapstructure:"config_dir"`
	// TranscriptDir receives chat transcripts.
	TranscriptDir string        `mapstructure:"transcript_dir"`
	WorkDir       string        `mapstructure:"work_dir"`
	BuildTimeout  time.Duration `mapstructure:"build_timeout"`
	WorldSize     int           `mapstructure:"world_size"`
	MaxTokens     int64         `mapstructure:"max_tokens"`
	MaxRound      int           `mapstructure:"max_round"`
	PlannerModel  string        `mapstructure:"planner_model"`
	AgentModel    string        `mapstructure:"agent_model"`
	// HumanPatience bounds the wait for human input.
	HumanPatience time.Duration `mapstructure:"human_patience"`

	Ports      PortSettings       `mapstructure:"ports"`
	Resilience ResilienceSettings `mapstructure:"resilience"`
	Log        LogSettings        `mapstructure:"log"`
}

// PortSettings configure port discovery.
type PortSettings struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
	Max   int `mapstructure:"max"`
}

// ResilienceSettings configure the completion circuit breaker and pacing.
type ResilienceSettings struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxFailures       uint32        `mapstructure:"max_failures"`
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// LogSettings configure logging.
type LogSettings struct {
	Level string `mapstructure:"level"`
	// Format is console, json or text.
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("config_list", "OAI_CONFIG_LIST")
	v.SetDefault("config_dir", ".")
	v.SetDefault("transcript_dir", "transcripts")
	v.SetDefault("work_dir", "groupchat")
	v.SetDefault("build_timeout", 180*time.Second)
	v.SetDefault("world_size", 1)
	v.SetDefault("max_tokens", 945)
	v.SetDefault("max_round", 12)
	v.SetDefault("planner_model", "gpt-4")
	v.SetDefault("agent_model", "gpt-4")
	v.SetDefault("human_patience", 5*time.Minute)
	v.SetDefault("ports.start", 8000)
	v.SetDefault("ports.end", 65535)
	v.SetDefault("ports.max", 32)
	v.SetDefault("resilience.enabled", true)
	v.SetDefault("resilience.max_failures", 5)
	v.SetDefault("resilience.open_timeout", 30*time.Second)
	v.SetDefault("resilience.requests_per_second", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads settings. An explicit path must exist; without one an
// agentcrew.{yaml,json,toml} in the working directory or ~/.agentcrew is used
// when present. Environment variables override both.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	} else {
		v.SetConfigName("agentcrew")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentcrew"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read settings: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.Ports.Start <= 0 || s.Ports.End > 65535 || s.Ports.Start > s.Ports.End {
		return fmt.Errorf("config: invalid port range %d-%d", s.Ports.Start, s.Ports.End)
	}
	if s.MaxRound <= 0 {
		return fmt.Errorf("config: max_round must be positive, got %d", s.MaxRound)
	}
	if s.WorldSize <= 0 {
		return fmt.Errorf("config: world_size must be positive, got %d", s.WorldSize)
	}
	return nil
}
