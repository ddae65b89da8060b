package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"vaultguard/internal/checks"
)

type evaluation struct {
	verdict  checks.Verdict
	err      error
	panicked bool
	panicVal any
}

// execute evaluates every planned check and returns their verdicts in plan
// order. It returns as soon as all slots are filled or runCtx ends; slots
// still empty at that point are folded to Inconclusive.
func (e *Engine) execute(runCtx context.Context, plan *assessmentPlan) []checks.Verdict {
	start := time.Now()
	n := len(plan.Checks)
	verdicts := make([]checks.Verdict, n)
	if n == 0 {
		return verdicts
	}

	// One buffered slot per check so a worker never blocks on a reader that
	// has already given up.
	slots := make([]chan checks.Verdict, n)
	for i := range slots {
		slots[i] = make(chan checks.Verdict, 1)
	}

	limit := e.concurrency
	if limit <= 0 {
		limit = n
	}
	var g errgroup.Group
	g.SetLimit(limit)

	go func() {
		for i, pc := range plan.Checks {
			i, pc := i, pc
			g.Go(func() error {
				slots[i] <- e.runCheck(runCtx, pc)
				return nil
			})
		}
		_ = g.Wait()
	}()

	for i, pc := range plan.Checks {
		select {
		case v := <-slots[i]:
			verdicts[i] = v
		case <-runCtx.Done():
			// Prefer a verdict that landed at the same instant.
			select {
			case v := <-slots[i]:
				verdicts[i] = v
			default:
				verdicts[i] = stamp(pc.Check, pendingVerdict(pc.Check.ID(), runCtx.Err()), time.Since(start))
				e.logf("check %s: no verdict by deadline (%s)", pc.Check.ID(), contextReason(runCtx.Err()))
			}
		}
	}
	return verdicts
}

// runCheck evaluates one check in its own goroutine and waits for it, for
// the check's own timeout, or for the end of the assessment.
func (e *Engine) runCheck(runCtx context.Context, pc plannedCheck) checks.Verdict {
	c := pc.Check
	id := c.ID()
	start := time.Now()

	if err := runCtx.Err(); err != nil {
		return stamp(c, pendingVerdict(id, err), 0)
	}

	var (
		checkCtx context.Context
		cancel   context.CancelFunc
	)
	if pc.Timeout > 0 {
		checkCtx, cancel = context.WithTimeout(runCtx, pc.Timeout)
	} else {
		checkCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	e.logf("check %s started", id)

	done := make(chan evaluation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evaluation{panicked: true, panicVal: r}
			}
		}()
		v, err := c.Evaluate(checkCtx)
		done <- evaluation{verdict: v, err: err}
	}()

	var v checks.Verdict
	select {
	case ev := <-done:
		v = settle(id, ev, runCtx, checkCtx)
	case <-checkCtx.Done():
		if err := runCtx.Err(); err != nil {
			v = pendingVerdict(id, err)
		} else {
			v = foldedVerdict(id, ReasonCheckTimeout, "Check exceeded its own timeout", map[string]string{"timeout": pc.Timeout.String()})
		}
	}

	v = stamp(c, v, time.Since(start))
	e.logf("check %s finished: %s in %dms", id, v.Outcome, v.LatencyMs)
	return v
}

func settle(id string, ev evaluation, runCtx, checkCtx context.Context) checks.Verdict {
	switch {
	case ev.panicked:
		return panicVerdict(id, ev.panicVal)
	case ev.err != nil:
		return presentCheckError(id, ev.err, runCtx, checkCtx)
	case !ev.verdict.Outcome.Valid():
		return foldedVerdict(id, ReasonInvalidOutcome, "Check returned an invalid outcome", map[string]string{"outcome": string(ev.verdict.Outcome)})
	default:
		return ev.verdict
	}
}

// stamp overwrites the fields the engine owns.
func stamp(c checks.Check, v checks.Verdict, elapsed time.Duration) checks.Verdict {
	v = v.Clone()
	v.CheckID = c.ID()
	v.LatencyMs = elapsed.Milliseconds()
	return v
}
