package output

import (
	"io"

	"vaultguard/internal/checks"
	"vaultguard/internal/policy"
)

const (
	EventAssessmentStarted  = "assessment.started"
	EventCheckVerdict       = "check.verdict"
	EventAssessmentFinished = "assessment.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// In NDJSON mode, sinks emit Events (one JSON object per line):
// - assessment.started
// - check.verdict (one per check, registration order)
// - assessment.finished
//
// JSON mode writes the aggregate policy.TrustAssessment instead.
type Event struct {
	Type string `json:"type"`
	*checks.Verdict
	Checks       int      `json:"checks,omitempty"`
	Policy       string   `json:"policy,omitempty"`
	Trusted      *bool    `json:"trusted,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Score        float64  `json:"score,omitempty"`
	Inconclusive []string `json:"inconclusive,omitempty"`
	ExitCode     int      `json:"exit_code,omitempty"`
}

// StartedEvent opens an assessment of n checks under the named policy.
func StartedEvent(policyName string, n int) Event {
	return Event{Type: EventAssessmentStarted, Checks: n, Policy: policyName}
}

func eventFromVerdict(v checks.Verdict) Event {
	return Event{Type: EventCheckVerdict, Verdict: &v}
}

// FinishedEvent summarises a for the assessment.finished record.
func FinishedEvent(a policy.TrustAssessment) Event {
	trusted := a.Trusted
	return Event{
		Type:         EventAssessmentFinished,
		Checks:       len(a.Verdicts),
		Policy:       a.Policy,
		Trusted:      &trusted,
		Reason:       a.Reason,
		Score:        a.Score,
		Inconclusive: a.Inconclusive,
		ExitCode:     policy.ExitCode(a),
	}
}

// streamRecord maps a value written to a sink onto its NDJSON record.
func streamRecord(v any) (Event, bool) {
	switch t := v.(type) {
	case Event:
		return t, true
	case checks.Verdict:
		return eventFromVerdict(t), true
	case policy.TrustAssessment:
		return FinishedEvent(t), true
	default:
		return Event{}, false
	}
}

// flushIfPossible pushes buffered writers (bufio.Writer and the like) so a
// streaming reader sees each record as soon as it is written.
func flushIfPossible(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
