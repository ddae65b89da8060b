// Package engine runs every registered check concurrently under a deadline
// and folds the verdicts into a trust assessment.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"vaultguard/internal/checks"
	"vaultguard/internal/output"
	"vaultguard/internal/policy"
)

// DefaultTimeout bounds an assessment when the caller passes no timeout.
const DefaultTimeout = 5 * time.Second

type Engine struct {
	registry      *checks.Registry
	policy        policy.Policy
	concurrency   int
	timeout       time.Duration
	checkTimeouts map[string]time.Duration
	out           *output.Manager

	verbose bool
	logMu   sync.Mutex
	logw    io.Writer

	optErr error
}

type Option func(*Engine)

// WithPolicy selects the aggregation policy. The default is
// policy.AnySuspicious.
func WithPolicy(p policy.Policy) Option {
	return func(e *Engine) {
		if p == nil {
			e.fail(checks.ConfigErrorf("", "aggregation policy must not be nil"))
			return
		}
		e.policy = p
	}
}

// WithConcurrency bounds how many checks evaluate at once. Without it every
// check gets its own worker.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			e.fail(checks.ConfigErrorf("", "concurrency must be >= 1, got %d", n))
			return
		}
		e.concurrency = n
	}
}

// WithTimeout sets the default overall deadline used when RequestAssessment
// is called without one.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d <= 0 {
			e.fail(checks.ConfigErrorf("", "assessment timeout must be > 0, got %s", d))
			return
		}
		e.timeout = d
	}
}

// WithCheckTimeout bounds a single check. The check must be registered by the
// time New runs.
func WithCheckTimeout(id string, d time.Duration) Option {
	return func(e *Engine) {
		if d <= 0 {
			e.fail(checks.ConfigErrorf(id, "check timeout must be > 0, got %s", d))
			return
		}
		e.checkTimeouts[id] = d
	}
}

// WithOutput streams lifecycle events, verdicts and the final assessment to
// m. The engine does not close m.
func WithOutput(m *output.Manager) Option {
	return func(e *Engine) { e.out = m }
}

// WithVerbose writes one diagnostic line per check start and finish to w
// (stderr when nil).
func WithVerbose(enabled bool, w io.Writer) Option {
	return func(e *Engine) {
		e.verbose = enabled
		if w != nil {
			e.logw = w
		}
	}
}

func (e *Engine) fail(err error) {
	if e.optErr == nil {
		e.optErr = err
	}
}

// New validates the registry and options. The registry is snapshotted at the
// start of every assessment, so checks registered later are picked up, but
// callers are expected to finish registration before the first assessment.
func New(reg *checks.Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, checks.ConfigErrorf("", "check registry must not be nil")
	}
	e := &Engine{
		registry:      reg,
		policy:        policy.AnySuspicious{},
		timeout:       DefaultTimeout,
		checkTimeouts: make(map[string]time.Duration),
		logw:          os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.optErr != nil {
		return nil, e.optErr
	}
	if reg.Len() == 0 {
		return nil, checks.ConfigErrorf("", "no checks registered")
	}
	for id := range e.checkTimeouts {
		if _, ok := reg.Get(id); !ok {
			return nil, checks.ConfigErrorf(id, "check timeout set for unregistered check")
		}
	}
	return e, nil
}

func (e *Engine) Policy() policy.Policy { return e.policy }

// Assess runs one assessment with the engine's default timeout.
func (e *Engine) Assess(ctx context.Context) policy.TrustAssessment {
	return e.RequestAssessment(ctx, 0)
}

// RequestAssessment evaluates all registered checks and returns once every
// check has delivered a verdict or the deadline has passed, whichever is
// first. Checks still running at the deadline are folded in as Inconclusive
// and their late results are discarded. A timeout <= 0 uses the engine
// default. It always returns an assessment.
func (e *Engine) RequestAssessment(ctx context.Context, timeout time.Duration) policy.TrustAssessment {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = e.timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	plan := e.newPlan()
	e.logf("assessment started: checks %v, policy %s, timeout %s", plan.IDs(), e.policy.Name(), timeout)
	e.emit(output.StartedEvent(e.policy.Name(), len(plan.Checks)))

	start := time.Now()
	verdicts := e.execute(runCtx, plan)
	a := e.policy.Aggregate(verdicts)

	for _, v := range a.Verdicts {
		e.emit(v)
	}
	e.emit(a)
	e.logf("assessment finished in %dms: %s", time.Since(start).Milliseconds(), policy.Summary(a))
	return a
}

// RequestAssessmentAsync starts an assessment and returns a channel that
// receives exactly one assessment and is then closed.
func (e *Engine) RequestAssessmentAsync(ctx context.Context, timeout time.Duration) <-chan policy.TrustAssessment {
	ch := make(chan policy.TrustAssessment, 1)
	go func() {
		defer close(ch)
		ch <- e.RequestAssessment(ctx, timeout)
	}()
	return ch
}

func (e *Engine) emit(v any) {
	if e.out == nil {
		return
	}
	if err := e.out.Write(v); err != nil {
		e.logf("output: %v", err)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if !e.verbose || e.logw == nil {
		return
	}
	e.logMu.Lock()
	defer e.logMu.Unlock()
	fmt.Fprintf(e.logw, "[verbose] "+format+"\n", args...)
}
