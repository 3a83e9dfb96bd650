package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/agentcrew/core"
)

// InputProvider returns one line of human input for a prompt.
// Implementations should honor ctx, but callers must not rely on it:
// UserProxyAgent enforces its patience timeout independently.
type InputProvider interface {
	ReadInput(ctx context.Context, prompt string) (string, error)
}

// OutputSink receives the messages shown to the human.
type OutputSink interface {
	Print(msg core.Message)
}

// ConsoleInput reads lines from r after writing the prompt to w.
type ConsoleInput struct {
	mu sync.Mutex
	r  *bufio.Reader
	w  io.Writer
}

// NewConsoleInput creates a ConsoleInput, typically over os.Stdin / os.Stdout.
func NewConsoleInput(r io.Reader, w io.Writer) *ConsoleInput {
	return &ConsoleInput{r: bufio.NewReader(r), w: w}
}

// ReadInput implements InputProvider.
func (c *ConsoleInput) ReadInput(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(c.w, prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// StaticInput replays scripted lines. Once exhausted it blocks until ctx is
// done, modelling a human who never answers.
type StaticInput struct {
	mu      sync.Mutex
	lines   []string
	prompts []string
}

// NewStaticInput creates a StaticInput replaying lines in order.
func NewStaticInput(lines ...string) *StaticInput {
	return &StaticInput{lines: lines}
}

// ReadInput implements InputProvider.
func (s *StaticInput) ReadInput(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) > 0 {
		line := s.lines[0]
		s.lines = s.lines[1:]
		s.mu.Unlock()
		return line, nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

// Prompts returns the prompts received so far.
func (s *StaticInput) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// WriterSink prints messages to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Print implements OutputSink.
func (s *WriterSink) Print(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := msg.Source
	if source == "" {
		source = string(msg.Role)
	}
	fmt.Fprintf(s.w, "%s (to chat):\n\n%s\n\n%s\n", source, msg.Content, strings.Repeat("-", 80))
}

type discardSink struct{}

func (discardSink) Print(core.Message) {}
