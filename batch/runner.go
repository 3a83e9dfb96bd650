// Package batch runs scripted trials: every trial is played once per seed by
// a caller supplied chat function, and every outcome is recorded as a
// transcript artifact. A failing trial never aborts the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentcrew/core"
	"github.com/hupe1980/agentcrew/groupchat"
	"github.com/hupe1980/agentcrew/logging"
)

// DefaultSeeds are the repetition seeds used when none are configured.
var DefaultSeeds = []int64{41, 42, 43}

// Trial is one scripted task.
type Trial struct {
	// Name identifies the trial and names its transcript.
	Name string
	// Group is the artifact session the transcript is stored under.
	Group string
	Task  string
	// Data carries caller specific input, e.g. a game file.
	Data any
}

// ChatFunc plays one repetition of a trial with seed. A non-nil result is
// recorded even when err is set.
type ChatFunc func(ctx context.Context, trial Trial, seed int64) (*groupchat.Result, error)

// Outcome is the result of one repetition.
type Outcome struct {
	Trial     string
	Seed      int64
	Succeeded bool
	Rounds    int
	Reason    groupchat.Reason
	// Artifact is the transcript name, empty without a store.
	Artifact string
	Duration time.Duration
	// Err is a *core.TransientTaskError when the repetition failed to run.
	Err error
}

// Report collects the outcomes of a batch in trial and seed order.
type Report struct {
	Outcomes []Outcome
}

// Succeeded returns the number of successful repetitions.
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded {
			n++
		}
	}
	return n
}

// Errors returns the repetitions that failed to run.
func (r *Report) Errors() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// SuccessRate returns the share of successful repetitions.
func (r *Report) SuccessRate() float64 {
	if len(r.Outcomes) == 0 {
		return 0
	}
	return float64(r.Succeeded()) / float64(len(r.Outcomes))
}

// Options configures a Runner.
type Options struct {
	Seeds []int64
	// Concurrency bounds the trials played in parallel. Repetitions of one
	// trial run in order.
	Concurrency int
	// StopOnSuccess skips the remaining seeds of a trial once one succeeded.
	StopOnSuccess bool
	// Store receives <name>.json or <name>_failed.json per repetition.
	Store  core.ArtifactStore
	Logger logging.Logger
}

// Runner plays trials.
type Runner struct {
	chat   ChatFunc
	opts   Options
	logger logging.Logger
}

// NewRunner creates a Runner around chat.
func NewRunner(chat ChatFunc, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Seeds:       DefaultSeeds,
		Concurrency: 1,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		chat:   chat,
		opts:   opts,
		logger: logging.With(logging.OrNoOp(opts.Logger), "component", "batch"),
	}
}

// Run plays every trial and returns the report. It only fails when ctx is
// canceled; the report then holds the outcomes finished so far.
func (r *Runner) Run(ctx context.Context, trials []Trial) (*Report, error) {
	results := make([][]Outcome, len(trials))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var mu sync.Mutex
	for i, trial := range trials {
		g.Go(func() error {
			for _, seed := range r.opts.Seeds {
				if err := gctx.Err(); err != nil {
					return err
				}
				o := r.play(gctx, trial, seed)
				mu.Lock()
				results[i] = append(results[i], o)
				mu.Unlock()
				if o.Succeeded && r.opts.StopOnSuccess {
					break
				}
			}
			return nil
		})
	}
	err := g.Wait()

	report := &Report{}
	for _, outs := range results {
		report.Outcomes = append(report.Outcomes, outs...)
	}
	r.logger.Info("batch finished", "trials", len(trials), "runs", len(report.Outcomes),
		"succeeded", report.Succeeded(), "errors", len(report.Errors()))
	return report, err
}

func (r *Runner) play(ctx context.Context, trial Trial, seed int64) Outcome {
	start := time.Now()
	res, err := r.call(ctx, trial, seed)

	o := Outcome{Trial: trial.Name, Seed: seed, Duration: time.Since(start)}
	if res != nil {
		o.Succeeded = err == nil && res.Succeeded()
		o.Rounds = res.Rounds
		o.Reason = res.Reason
	}
	if err != nil && ctx.Err() == nil {
		o.Err = &core.TransientTaskError{Trial: fmt.Sprintf("%s/seed_%d", trial.Name, seed), Err: err}
		r.logger.Warn("trial failed", "trial", trial.Name, "seed", seed, "error", err)
	} else if err != nil {
		o.Err = err
	}

	if r.opts.Store != nil {
		if res == nil {
			res = &groupchat.Result{Reason: groupchat.ReasonFailed, Err: err}
		}
		name, werr := groupchat.WriteTranscript(r.opts.Store, sessionOf(trial), trial.Name, res)
		if werr != nil {
			r.logger.Error("write transcript", "trial", trial.Name, "error", werr)
		}
		o.Artifact = name
	}

	r.logger.Debug("trial played", "trial", trial.Name, "seed", seed, "succeeded", o.Succeeded,
		"rounds", o.Rounds, "duration", o.Duration)
	return o
}

// call runs the chat function and turns a panic into an error.
func (r *Runner) call(ctx context.Context, trial Trial, seed int64) (res *groupchat.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("trial panicked", "trial", trial.Name, "panic", p, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	if r.chat == nil {
		return nil, errors.New("batch: no chat function")
	}
	return r.chat(ctx, trial, seed)
}

func sessionOf(t Trial) string {
	if t.Group != "" {
		return t.Group
	}
	return "trials"
}
