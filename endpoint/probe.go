package endpoint

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrPortConflict is reported by a probe when the server could not bind
	// its port.
	ErrPortConflict = errors.New("endpoint: port already in use")

	// ErrProcessExited is reported when the server stops before it is ready.
	ErrProcessExited = errors.New("endpoint: server exited before becoming ready")
)

// ReadinessProbe waits until a started server accepts requests. It returns
// nil when ready, ErrPortConflict, ErrProcessExited or the context error.
// Probes must keep draining proc.Output after they return.
type ReadinessProbe interface {
	Wait(ctx context.Context, proc Process, host string, port int) error
}

// MarkerProbe watches the server output line by line for a readiness or a
// port conflict marker. Matching is case-insensitive.
type MarkerProbe struct {
	Ready    string
	Conflict string
	// OnLine receives every output line, before and after readiness.
	OnLine func(line string)
}

// NewMarkerProbe returns a probe for uvicorn based servers.
func NewMarkerProbe() MarkerProbe {
	return MarkerProbe{Ready: "running", Conflict: "address already in use"}
}

// Wait implements ReadinessProbe.
func (p MarkerProbe) Wait(ctx context.Context, proc Process, _ string, _ int) error {
	ready := strings.ToLower(p.Ready)
	conflict := strings.ToLower(p.Conflict)

	lines := make(chan string)
	finished := make(chan struct{})
	defer close(finished)

	go scanLines(proc.Output(), p.OnLine, lines, finished)

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return ErrProcessExited
			}
			l := strings.ToLower(line)
			if conflict != "" && strings.Contains(l, conflict) {
				return ErrPortConflict
			}
			if ready != "" && strings.Contains(l, ready) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HTTPProbe polls a health URL on the server until it answers 200.
type HTTPProbe struct {
	// Path is requested on http://host:port, e.g. "/health".
	Path     string
	Interval time.Duration
	Client   *http.Client
	OnLine   func(line string)
}

// NewHTTPProbe returns a probe polling /health every 500ms.
func NewHTTPProbe() HTTPProbe {
	return HTTPProbe{Path: "/health", Interval: 500 * time.Millisecond}
}

// Wait implements ReadinessProbe.
func (p HTTPProbe) Wait(ctx context.Context, proc Process, host string, port int) error {
	go scanLines(proc.Output(), p.OnLine, nil, nil)

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), p.Path)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok := p.poll(ctx, client, url); ok {
			return nil
		}
		select {
		case <-proc.Done():
			return ErrProcessExited
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p HTTPProbe) poll(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// scanLines reads r line by line until EOF, calling onLine for each line.
// Lines are forwarded to out until finished is closed. out is closed at EOF.
func scanLines(r io.Reader, onLine func(string), out chan<- string, finished <-chan struct{}) {
	if out != nil {
		defer close(out)
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if onLine != nil {
			onLine(line)
		}
		if out == nil {
			continue
		}
		select {
		case out <- line:
		case <-finished:
			out = nil
		}
	}
	if sc.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}
