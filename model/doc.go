// Package model defines the provider-agnostic contract for the language-model
// completion service consumed by agentcrew agents.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Carry sampling parameters (temperature, top_p, seed, max tokens) per request
//   - Report token usage with every final response
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/openai, model/anthropic) implement Model so agents, the
// planner and the speaker selector stay decoupled from vendor SDKs. Resilient
// wraps any Model with a circuit breaker and a rate limiter.
package model
