package endpoint

import (
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentcrew/model"
	"github.com/hupe1980/agentcrew/model/anthropic"
	"github.com/hupe1980/agentcrew/model/openai"
)

// ModelSpec describes the completion client of one agent.
type ModelSpec struct {
	Model     string
	BaseURL   string
	APIKey    string
	APIType   string
	MaxTokens int64
}

// ModelFactory creates the completion client for an agent.
type ModelFactory func(spec ModelSpec) (model.Model, error)

// DefaultModelFactory returns an Anthropic client for api type "anthropic"
// or claude models and an OpenAI compatible client otherwise.
func DefaultModelFactory(spec ModelSpec) (model.Model, error) {
	if spec.APIType == "anthropic" || (spec.APIType == "" && strings.HasPrefix(spec.Model, "claude-")) {
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(spec.Model)
			o.APIKey = spec.APIKey
			o.BaseURL = spec.BaseURL
			if spec.MaxTokens > 0 {
				o.MaxTokens = spec.MaxTokens
			}
		}), nil
	}
	return openai.NewModel(func(o *openai.Options) {
		o.Model = spec.Model
		o.APIKey = spec.APIKey
		o.BaseURL = spec.BaseURL
		if spec.MaxTokens > 0 {
			o.MaxCompletionTokens = spec.MaxTokens
		}
	}), nil
}
