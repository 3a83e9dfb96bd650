// Package fakeserver simulates model-serving processes and a host network
// for endpoint tests. It lives apart from testutil because it depends on the
// endpoint package.
package fakeserver

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	"github.com/hupe1980/agentcrew/endpoint"
)

// Network is an in-memory set of occupied ports on one host.
type Network struct {
	mu       sync.Mutex
	occupied map[int]bool
}

// NewNetwork returns a network where the given ports are already taken.
func NewNetwork(occupied ...int) *Network {
	n := &Network{occupied: make(map[int]bool)}
	for _, p := range occupied {
		n.occupied[p] = true
	}
	return n
}

var errInUse = errors.New("address already in use")

// Probe implements endpoint.PortProbe. A successful probe occupies the port
// until the returned closer is closed.
func (n *Network) Probe(_ string, port int) (io.Closer, error) {
	if !n.Occupy(port) {
		return nil, fmt.Errorf("bind %d: %w", port, errInUse)
	}
	return closerFunc(func() error {
		n.Release(port)
		return nil
	}), nil
}

// Occupy takes port and reports whether it was free.
func (n *Network) Occupy(port int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.occupied[port] {
		return false
	}
	n.occupied[port] = true
	return true
}

// Release frees port.
func (n *Network) Release(port int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.occupied, port)
}

// Occupied reports whether port is taken.
func (n *Network) Occupied(port int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.occupied[port]
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Behavior scripts how a launched server starts.
type Behavior int

const (
	// Ready prints a readiness line and serves until terminated.
	Ready Behavior = iota
	// Hang prints nothing and never becomes ready.
	Hang
	// Exit quits right after starting.
	Exit
	// Conflict reports that the port is taken by another program and exits.
	Conflict
)

// Launcher implements endpoint.Launcher with in-memory processes. A server
// binding an occupied port prints the conflict line and exits.
type Launcher struct {
	Network *Network
	// Behaviors maps a model to its startup behavior. Unknown models are Ready.
	Behaviors map[string]Behavior
	Err       error

	mu       sync.Mutex
	launched []endpoint.Command
	procs    []*Process
}

// Launch implements endpoint.Launcher.
func (l *Launcher) Launch(cmd endpoint.Command) (endpoint.Process, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	port, _ := strconv.Atoi(arg(cmd.Args, "--port"))
	model := arg(cmd.Args, "--model")

	l.mu.Lock()
	behavior := l.Behaviors[model]
	l.mu.Unlock()

	pr, pw := io.Pipe()
	p := &Process{Port: port, Model: model, out: pr, w: pw, done: make(chan struct{}), network: l.Network}

	switch {
	case behavior == Conflict || (l.Network != nil && !l.Network.Occupy(port)):
		go p.exitWith("ERROR: [Errno 98] error while attempting to bind: address already in use")
	case behavior == Ready:
		p.bound = l.Network != nil
		go p.print(fmt.Sprintf("INFO: Uvicorn running on http://localhost:%d (Press CTRL+C to quit)", port))
	case behavior == Exit:
		p.bound = l.Network != nil
		go p.exitWith("Traceback: model not found")
	default:
		p.bound = l.Network != nil
	}

	l.mu.Lock()
	l.launched = append(l.launched, cmd)
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	return p, nil
}

// Launched returns every command started so far.
func (l *Launcher) Launched() []endpoint.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.launched)
}

// Processes returns every process started so far.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.procs)
}

// Running returns the number of processes not yet terminated.
func (l *Launcher) Running() int {
	n := 0
	for _, p := range l.Processes() {
		if !p.Exited() {
			n++
		}
	}
	return n
}

// Process is an in-memory endpoint.Process.
type Process struct {
	Port  int
	Model string

	out     *io.PipeReader
	w       *io.PipeWriter
	network *Network
	bound   bool

	once       sync.Once
	done       chan struct{}
	mu         sync.Mutex
	terminated bool
}

// Output implements endpoint.Process.
func (p *Process) Output() io.Reader { return p.out }

// Done implements endpoint.Process.
func (p *Process) Done() <-chan struct{} { return p.done }

// Terminate implements endpoint.Process.
func (p *Process) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	p.mu.Unlock()
	p.exit()
	return nil
}

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Exited reports whether the process is gone.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Process) print(line string) {
	_, _ = io.WriteString(p.w, line+"\n")
}

func (p *Process) exitWith(line string) {
	p.print(line)
	p.exit()
}

func (p *Process) exit() {
	p.once.Do(func() {
		_ = p.w.Close()
		if p.bound {
			p.network.Release(p.Port)
		}
		close(p.done)
	})
}

func arg(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
