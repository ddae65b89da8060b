package checks

type Outcome string

const (
	OutcomeClean        Outcome = "CLEAN"
	OutcomeSuspicious   Outcome = "SUSPICIOUS"
	OutcomeInconclusive Outcome = "INCONCLUSIVE"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeClean, OutcomeSuspicious, OutcomeInconclusive:
		return true
	default:
		return false
	}
}

// Verdict is the per-check result. Treat it as immutable: the engine hands
// out verdicts whose Evidence map is a private copy.
type Verdict struct {
	CheckID string  `json:"check_id"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
	// Evidence contains simple key-value string pairs for diagnostics.
	Evidence  map[string]string `json:"evidence,omitempty"`
	LatencyMs int64             `json:"latency_ms"`
}

func (v Verdict) EvidenceValue(key string) string {
	return v.Evidence[key]
}

// Clone returns a copy of v that shares no mutable state with it.
func (v Verdict) Clone() Verdict {
	out := v
	if v.Evidence != nil {
		out.Evidence = make(map[string]string, len(v.Evidence))
		for k, val := range v.Evidence {
			out.Evidence[k] = val
		}
	}
	return out
}
