package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentcrew/logging"
)

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// ResilientOptions configures Resilient.
type ResilientOptions struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a half-open probe.
	OpenTimeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
	// RequestsPerSecond paces calls to the completion service; 0 disables pacing.
	RequestsPerSecond float64
	// Burst is the limiter bucket size (minimum 1).
	Burst  int
	Logger logging.Logger
}

// Resilient wraps a Model with a circuit breaker and an optional rate limiter.
// Streamed chunks are buffered until the call completes so the breaker sees
// the outcome of the whole call.
type Resilient struct {
	inner   Model
	breaker *gobreaker.CircuitBreaker[[]Response]
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewResilient wraps inner. Zero option values fall back to defaults.
func NewResilient(inner Model, optFns ...func(o *ResilientOptions)) *Resilient {
	opts := ResilientOptions{
		MaxFailures: defaultMaxFailures,
		OpenTimeout: defaultOpenTimeout,
		Interval:    defaultInterval,
		Burst:       1,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	logger := logging.With(opts.Logger, "component", "model", "model", inner.Info().Name)
	maxFailures := opts.MaxFailures

	cb := gobreaker.NewCircuitBreaker[[]Response](gobreaker.Settings{
		Name:        "model:" + inner.Info().Name,
		MaxRequests: 1,
		Interval:    opts.Interval,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the health of the service.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}

	return &Resilient{inner: inner, breaker: cb, limiter: limiter, logger: logger}
}

// Generate implements Model.
func (r *Resilient) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				errCh <- fmt.Errorf("rate limit wait: %w", err)
				return
			}
		}

		start := time.Now()
		chunks, err := r.breaker.Execute(func() ([]Response, error) {
			return collect(ctx, r.inner, req)
		})
		tokens := 0
		if n := len(chunks); n > 0 && chunks[n-1].Usage != nil {
			tokens = chunks[n-1].Usage.Total()
		}
		logging.LogModelCall(r.logger, r.inner.Info().Name, tokens, time.Since(start), err)

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				errCh <- fmt.Errorf("model %q circuit open: %w", r.inner.Info().Name, err)
				return
			}
			errCh <- err
			return
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

// Info implements Model.
func (r *Resilient) Info() Info { return r.inner.Info() }

// State returns the current circuit breaker state for monitoring.
func (r *Resilient) State() gobreaker.State { return r.breaker.State() }

func collect(ctx context.Context, m Model, req Request) ([]Response, error) {
	respCh, errCh := m.Generate(ctx, req)
	var chunks []Response
	for c := range respCh {
		chunks = append(chunks, c)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return chunks, nil
}
