package core

import (
	"fmt"
	"time"
)

// ProvisioningError reports a failure to bring up a model-serving endpoint:
// a port conflict, a startup timeout or a launcher failure. It is fatal to the
// create call that triggered provisioning.
type ProvisioningError struct {
	EndpointID string
	Host       string
	Port       int
	Reason     string
	Err        error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("provisioning endpoint %s on %s:%d failed: %s", e.EndpointID, e.Host, e.Port, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// ProtocolError reports an agent that broke the response stream contract: no
// terminal response, more than one, or an undeclared message type. It is fatal
// to the current turn and is never retried.
type ProtocolError struct {
	Agent  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("agent %s violated the response protocol: %s", e.Agent, e.Reason)
}

// TimeoutError reports a bounded wait (human input, endpoint startup) that
// exceeded its patience.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// TransientTaskError wraps any failure of one scripted trial. Batch runners
// record it and continue with the next trial.
type TransientTaskError struct {
	Trial string
	Err   error
}

func (e *TransientTaskError) Error() string {
	return fmt.Sprintf("trial %s failed: %v", e.Trial, e.Err)
}

func (e *TransientTaskError) Unwrap() error { return e.Err }

// ConfigNotFoundError is returned when loading a build config from a path
// that does not exist.
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file %s does not exist", e.Path)
}
