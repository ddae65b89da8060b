package engine

import (
	"context"
	"errors"
	"fmt"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

// Reasons recorded in the evidence of verdicts the engine folds to
// Inconclusive.
const (
	ReasonTimeout          = "timeout"
	ReasonCanceled         = "canceled"
	ReasonCheckTimeout     = "check_timeout"
	ReasonPanic            = "panic"
	ReasonProbeUnavailable = "probe_unavailable"
	ReasonError            = "error"
	ReasonInvalidOutcome   = "invalid_outcome"
)

// contextReason names why runCtx ended.
func contextReason(err error) string {
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	return ReasonTimeout
}

func foldedVerdict(id, reason, message string, extra map[string]string) checks.Verdict {
	ev := map[string]string{"reason": reason}
	for k, v := range extra {
		ev[k] = v
	}
	return checks.InconclusiveVerdict(id, message).WithEvidence(ev)
}

// pendingVerdict is folded in for a check that had not delivered a verdict
// when the assessment ended.
func pendingVerdict(id string, runErr error) checks.Verdict {
	reason := contextReason(runErr)
	msg := "Assessment deadline reached before the check completed"
	if reason == ReasonCanceled {
		msg = "Assessment canceled before the check completed"
	}
	return foldedVerdict(id, reason, msg, nil)
}

// presentCheckError maps an error returned by Evaluate onto an Inconclusive
// verdict. runCtx is the assessment context and checkCtx the check's own.
func presentCheckError(id string, err error, runCtx, checkCtx context.Context) checks.Verdict {
	switch {
	case runCtx.Err() != nil && isContextError(err):
		return pendingVerdict(id, runCtx.Err())
	case checkCtx.Err() != nil && isContextError(err):
		return foldedVerdict(id, ReasonCheckTimeout, "Check exceeded its own timeout", nil)
	case probe.IsUnavailable(err):
		p := ""
		var ue *probe.UnavailableError
		if errors.As(err, &ue) {
			p = ue.Probe
		}
		return foldedVerdict(id, ReasonProbeUnavailable, fmt.Sprintf("Probe unavailable: %v", err), map[string]string{"probe": p})
	default:
		return foldedVerdict(id, ReasonError, fmt.Sprintf("Evaluation failed: %v", err), nil)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func panicVerdict(id string, r any) checks.Verdict {
	return foldedVerdict(id, ReasonPanic, fmt.Sprintf("Check panicked: %v", r), nil)
}
