// Package core provides the foundational domain types and contracts shared by
// the agentcrew packages:
//
//   - Messages (immutable conversation records with optional tool payloads)
//   - Events & Responses (elements of an agent's lazy response stream)
//   - ChatAgent (the participant contract driven by group chat containers)
//   - Typed error kinds (provisioning, protocol, timeout, transient task, missing config)
//   - ArtifactStore (flat persistence for transcripts)
//
// Implementation concerns (routing, orchestration, endpoints, concrete agents)
// live in sibling packages and depend on this one, never the other way round.
package core
