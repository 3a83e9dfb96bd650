package endpoint

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hupe1980/agentcrew/logging"
)

// Command describes a serving process to start.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

// CommandFunc builds the serving command for a model on host:port with the
// given tensor parallel size.
type CommandFunc func(host string, port int, model string, worldSize int) Command

// VLLMCommand starts an OpenAI compatible vLLM server.
func VLLMCommand(host string, port int, model string, worldSize int) Command {
	return Command{
		Path: "python",
		Args: []string{
			"-m", "vllm.entrypoints.openai.api_server",
			"--host", host,
			"--port", strconv.Itoa(port),
			"--model", model,
			"--tensor-parallel-size", strconv.Itoa(worldSize),
		},
	}
}

// Process is a running serving process.
type Process interface {
	// Output streams the combined stdout and stderr. It must be drained.
	Output() io.Reader
	// Done is closed once the process exited.
	Done() <-chan struct{}
	// Terminate stops the process and waits for it to exit.
	Terminate() error
}

// Launcher starts serving processes.
type Launcher interface {
	Launch(cmd Command) (Process, error)
}

// ExecLauncher starts processes with os/exec. Processes outlive the call
// that started them and run until terminated.
type ExecLauncher struct {
	// GracePeriod is how long Terminate waits after SIGTERM before killing.
	GracePeriod time.Duration
	Logger      logging.Logger
}

// Launch implements Launcher.
func (l ExecLauncher) Launch(c Command) (Process, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	grace := l.GracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	// Children may inherit the output pipe and outlive the server.
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	p := &execProcess{cmd: cmd, out: pr, done: make(chan struct{}), grace: grace}
	logger := logging.OrNoOp(l.Logger)
	logger.Debug("process started", "pid", cmd.Process.Pid, "command", c.String())

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		_ = pw.CloseWithError(io.EOF)
		close(p.done)
		logger.Debug("process exited", "pid", cmd.Process.Pid, "error", err)
	}()

	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	out   *io.PipeReader
	done  chan struct{}
	grace time.Duration

	mu  sync.Mutex
	err error
}

func (p *execProcess) Output() io.Reader     { return p.out }
func (p *execProcess) Done() <-chan struct{} { return p.done }

// Terminate sends SIGTERM, then kills the process if it is still running
// after the grace period.
func (p *execProcess) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process: %w", err)
		}
	}

	select {
	case <-p.done:
	case <-time.After(p.grace):
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process: %w", err)
		}
		<-p.done
	}
	// Closing the reader unblocks a writer if nobody drains the output.
	_ = p.out.Close()
	return nil
}
