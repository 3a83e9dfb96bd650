package groupchat

import (
	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/router"
)

// Topic names. Each chat prefixes them with its ID.
const (
	ParentTopic = "parent"
	OutputTopic = "output"
	GroupTopic  = "group"
)

// PublishEvent carries a conversation message to containers. A container
// ignores replies of its own agent; Seeded messages (the task and replayed
// history) reach their author too.
type PublishEvent struct {
	Message core.Message
	Seeded  bool
}

// RequestEvent asks one container to drive its agent for a turn.
type RequestEvent struct {
	TurnID  string
	Attempt int
	Seed    *int64
}

// ResponseEvent reports a completed turn to the orchestrator.
type ResponseEvent struct {
	TurnID   string
	Agent    string
	Response core.Response
}

// TurnFailedEvent reports a failed turn to the orchestrator.
type TurnFailedEvent struct {
	TurnID string
	Agent  string
	Err    error
}

// ProgressEvent carries a non-terminal agent event (tool traffic) to the
// output topic.
type ProgressEvent struct {
	Agent   string
	Message core.Message
}

func scoped(chatID, name string) router.Topic {
	return router.Topic(chatID + "/" + name)
}

func requestTopic(chatID, agent string) router.Topic {
	return scoped(chatID, "agent:"+agent)
}
