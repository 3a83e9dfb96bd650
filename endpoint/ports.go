package endpoint

import (
	"errors"
	"io"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/hupe1980/agentcrew/logging"
)

// ErrNoFreePort is returned when the pool has no port left to hand out.
var ErrNoFreePort = errors.New("endpoint: no free port")

// PortProbe tries to claim host:port. On success the returned closer holds
// the claim until it is closed.
type PortProbe func(host string, port int) (io.Closer, error)

// ListenProbe is the default PortProbe: it binds a TCP listener.
func ListenProbe(host string, port int) (io.Closer, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// PortPoolOptions configures a PortPool.
type PortPoolOptions struct {
	// RangeStart and RangeEnd bound the scanned ports, both inclusive.
	RangeStart int
	RangeEnd   int
	// MaxPorts stops discovery once that many free ports were found. 0 scans
	// the whole range.
	MaxPorts int
	Probe    PortProbe
	Logger   logging.Logger
}

// PortPool tracks free, bound and quarantined ports on one host. A port is
// either free or bound, never both; quarantined ports are never handed out
// again.
type PortPool struct {
	host string
	opts PortPoolOptions

	mu          sync.Mutex
	discovered  bool
	free        []int
	bound       map[int]bool
	quarantined map[int]bool
}

// NewPortPool creates a pool for host. Ports are discovered on first use.
func NewPortPool(host string, optFns ...func(o *PortPoolOptions)) *PortPool {
	opts := PortPoolOptions{
		RangeStart: 8000,
		RangeEnd:   65535,
		MaxPorts:   32,
		Probe:      ListenProbe,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &PortPool{
		host:        host,
		opts:        opts,
		bound:       make(map[int]bool),
		quarantined: make(map[int]bool),
	}
}

// Discover scans the configured range and returns the number of free ports
// found. Calling it again rescans and keeps bound and quarantined ports out.
func (p *PortPool) Discover() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discover()
	return len(p.free)
}

func (p *PortPool) discover() {
	p.discovered = true
	p.free = p.free[:0]
	for port := p.opts.RangeStart; port <= p.opts.RangeEnd; port++ {
		if p.opts.MaxPorts > 0 && len(p.free) >= p.opts.MaxPorts {
			break
		}
		if p.bound[port] || p.quarantined[port] {
			continue
		}
		c, err := p.opts.Probe(p.host, port)
		if err != nil {
			continue
		}
		_ = c.Close()
		p.free = append(p.free, port)
	}
	logging.OrNoOp(p.opts.Logger).Debug("ports discovered", "host", p.host, "free", len(p.free))
}

// Lease is a port claimed from the pool. The probe listener stays open until
// Release, so nothing else grabs the port before the server starts.
type Lease struct {
	Port int

	once   sync.Once
	closer io.Closer
}

// Release closes the probe listener. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.closer != nil {
			_ = l.closer.Close()
		}
	})
}

// Acquire binds the next free port. Candidates are re-probed first; ports
// taken by someone else since discovery are dropped from the pool.
func (p *PortPool) Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.discovered {
		p.discover()
	}
	for len(p.free) > 0 {
		port := p.free[0]
		p.free = p.free[1:]
		if p.bound[port] || p.quarantined[port] {
			continue
		}
		c, err := p.opts.Probe(p.host, port)
		if err != nil {
			logging.OrNoOp(p.opts.Logger).Debug("port no longer free", "port", port, "error", err)
			continue
		}
		p.bound[port] = true
		return &Lease{Port: port, closer: c}, nil
	}
	return nil, ErrNoFreePort
}

// Return puts a bound port back into the pool.
func (p *PortPool) Return(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.bound[port] {
		return
	}
	delete(p.bound, port)
	if !p.quarantined[port] && !slices.Contains(p.free, port) {
		p.free = append(p.free, port)
	}
}

// Quarantine unbinds a port and keeps it out of the pool for good.
func (p *PortPool) Quarantine(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bound, port)
	p.free = slices.DeleteFunc(p.free, func(v int) bool { return v == port })
	p.quarantined[port] = true
}

// Free returns the ports available for Acquire.
func (p *PortPool) Free() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.free)
}

// Bound returns the ports currently handed out, sorted.
func (p *PortPool) Bound() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.bound))
	for port := range p.bound {
		out = append(out, port)
	}
	slices.Sort(out)
	return out
}

// Quarantined returns the ports excluded after a conflict, sorted.
func (p *PortPool) Quarantined() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, 0, len(p.quarantined))
	for port := range p.quarantined {
		out = append(out, port)
	}
	slices.Sort(out)
	return out
}
