package code

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/agentcrew/logging"
)

// LocalOptions configures LocalExecutor.
type LocalOptions struct {
	// WorkDir is where scripts are written and run. Empty means a fresh temp dir per call.
	WorkDir string
	// Timeout bounds each block's runtime.
	Timeout time.Duration
	// Interpreters maps a block language to the command that runs a script file.
	Interpreters map[string][]string
	Logger       logging.Logger
}

// LocalExecutor runs code blocks as local subprocesses.
type LocalExecutor struct {
	opts LocalOptions
}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor(optFns ...func(o *LocalOptions)) *LocalExecutor {
	opts := LocalOptions{
		Timeout: 60 * time.Second,
		Interpreters: map[string][]string{
			"python": {"python3"},
			"py":     {"python3"},
			"sh":     {"sh"},
			"bash":   {"bash"},
			"shell":  {"sh"},
			"":       {"python3"},
		},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LocalExecutor{opts: opts}
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, blocks []Block) (Result, error) {
	dir := e.opts.WorkDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "agentcrew-code-*")
		if err != nil {
			return Result{}, fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	var out strings.Builder
	for i, b := range blocks {
		interp, ok := e.opts.Interpreters[b.Language]
		if !ok {
			out.WriteString("unknown language " + b.Language)
			return Result{ExitCode: 1, Output: out.String()}, nil
		}

		script := filepath.Join(dir, fmt.Sprintf("block_%d%s", i, extension(b.Language)))
		if err := os.WriteFile(script, []byte(b.Code), 0o600); err != nil {
			return Result{}, fmt.Errorf("write script: %w", err)
		}

		args := append(append([]string{}, interp[1:]...), script)
		code, output, err := e.run(ctx, dir, interp[0], args)
		if err != nil {
			return Result{}, err
		}
		out.WriteString(output)
		e.opts.Logger.Debug("code block executed", "index", i, "language", b.Language, "exit_code", code)
		if code != 0 {
			return Result{ExitCode: code, Output: out.String()}, nil
		}
	}
	return Result{Output: out.String()}, nil
}

func (e *LocalExecutor) run(ctx context.Context, dir, name string, args []string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return 1, buf.String() + "\nTimeout", nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), buf.String(), nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("run %s: %w", name, err)
	}
	return 0, buf.String(), nil
}

func extension(lang string) string {
	switch lang {
	case "sh", "bash", "shell":
		return ".sh"
	default:
		return ".py"
	}
}
