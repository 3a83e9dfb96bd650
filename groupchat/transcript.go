package groupchat

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentcrew/core"
)

// TranscriptRecord is one entry of a transcript file.
type TranscriptRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Transcript converts messages into transcript records.
func Transcript(messages []core.Message) []TranscriptRecord {
	out := make([]TranscriptRecord, 0, len(messages))
	for _, m := range messages {
		out = append(out, TranscriptRecord{Role: string(m.Role), Content: m.Content, Name: m.Source})
	}
	return out
}

// TranscriptName returns the artifact name for a result: name.json on
// success, name_failed.json otherwise.
func TranscriptName(name string, res *Result) string {
	if res.Succeeded() {
		return name + ".json"
	}
	return name + "_failed.json"
}

// WriteTranscript stores the conversation of res under sessionID and returns
// the artifact name it used.
func WriteTranscript(store core.ArtifactStore, sessionID, name string, res *Result) (string, error) {
	data, err := json.MarshalIndent(Transcript(res.Messages), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	artifactID := TranscriptName(name, res)
	if err := store.Save(sessionID, artifactID, data); err != nil {
		return "", fmt.Errorf("save transcript %s: %w", artifactID, err)
	}
	return artifactID, nil
}
