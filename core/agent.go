package core

import "context"

// TurnOptions parameterizes a single response-generation call. Attempt is
// 1-based; Seed, when set, is forwarded to the completion service so retries
// of the same turn sample differently.
type TurnOptions struct {
	Attempt int
	Seed    *int64
}

// ChatAgent is a conversation participant. Given the messages it has not yet
// seen, it produces a lazy, finite stream of events that ends with exactly one
// Response. Agents keep their own conversational memory across turns.
//
// Implementations must:
//   - close the events channel when generation ends
//   - send at most one error on the error channel (buffered, size 1)
//   - respect context cancellation
//   - only emit messages whose Type is listed by ProducedMessageTypes
type ChatAgent interface {
	Name() string
	Description() string
	ProducedMessageTypes() []MessageType
	OnMessagesStream(ctx context.Context, messages []Message, opts TurnOptions) (<-chan Event, <-chan error)
	Reset(ctx context.Context) error
}

// Produces reports whether t is one of the types the agent declares.
func Produces(a ChatAgent, t MessageType) bool {
	for _, pt := range a.ProducedMessageTypes() {
		if pt == t {
			return true
		}
	}
	return false
}

// ArtifactStore persists flat artifacts (transcripts) scoped by a session
// identifier. Implementations must be safe for concurrent use.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}
