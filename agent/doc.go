// Package agent contains the conversation participants driven by a group
// chat:
//
//  1. AssistantAgent: a model-backed participant with optional tool calling.
//  2. UserProxyAgent: stands in for a human, reading input through an
//     injected InputProvider and optionally executing code blocks.
//
// Both implement core.ChatAgent. Strategies (model, tools, input provider,
// output sink, code executor) are injected through functional options at
// construction time; agents are never patched afterwards.
//
// Agents keep their own conversational memory. A turn receives only the
// messages the agent has not seen yet and ends with exactly one
// core.Response on the event stream.
package agent
