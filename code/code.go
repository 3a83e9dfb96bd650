// Package code runs code blocks proposed by agents. The Executor contract is
// the boundary to a code-execution sandbox; LocalExecutor is a plain
// subprocess implementation for trusted environments.
package code

import (
	"context"
	"regexp"
	"strings"
)

// Block is one fenced code block extracted from a message.
type Block struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Result summarizes the execution of a sequence of blocks.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Executor defines the interface for executing code blocks.
type Executor interface {
	// Execute runs blocks in order, stopping at the first non-zero exit code.
	Execute(ctx context.Context, blocks []Block) (Result, error)
}

var fence = regexp.MustCompile("(?s)```[ \t]*([\\w+-]*)[^\n]*\n(.*?)```")

// ExtractBlocks returns the fenced code blocks found in text, in order.
// Blocks without a language tag are reported with language "".
func ExtractBlocks(text string) []Block {
	var blocks []Block
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		body := m[2]
		if strings.TrimSpace(body) == "" {
			continue
		}
		blocks = append(blocks, Block{Language: strings.ToLower(m[1]), Code: body})
	}
	return blocks
}
