package model

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ConfigEntry is one endpoint credential entry of a model config list. The
// file format is a YAML (or JSON, which YAML accepts) list of entries.
type ConfigEntry struct {
	Model   string `yaml:"model" json:"model"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIType string `yaml:"api_type" json:"api_type"` // "openai" (default) or "anthropic"
}

// ConfigList is an ordered set of model credentials.
type ConfigList []ConfigEntry

// LoadConfigList reads a config list file.
func LoadConfigList(path string) (ConfigList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config list: %w", err)
	}
	return ParseConfigList(data)
}

// ParseConfigList decodes a YAML or JSON config list.
func ParseConfigList(data []byte) (ConfigList, error) {
	var list ConfigList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse config list: %w", err)
	}
	for i, e := range list {
		if e.Model == "" {
			return nil, fmt.Errorf("parse config list: entry %d has no model", i)
		}
	}
	return list, nil
}

// Filter returns the entries whose model is one of models, preserving order.
func (l ConfigList) Filter(models ...string) ConfigList {
	var out ConfigList
	for _, e := range l {
		if slices.Contains(models, e.Model) {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first entry for model, if any.
func (l ConfigList) First(model string) (ConfigEntry, bool) {
	f := l.Filter(model)
	if len(f) == 0 {
		return ConfigEntry{}, false
	}
	return f[0], true
}
