package checks

func NewVerdict(checkID string, outcome Outcome, message string) Verdict {
	v := Verdict{
		CheckID: checkID,
		Outcome: outcome,
	}
	if message != "" {
		v.Message = message
	}
	return v
}

func CleanVerdict(checkID string, message string) Verdict {
	return NewVerdict(checkID, OutcomeClean, message)
}

func SuspiciousVerdict(checkID string, message string) Verdict {
	return NewVerdict(checkID, OutcomeSuspicious, message)
}

func InconclusiveVerdict(checkID string, message string) Verdict {
	return NewVerdict(checkID, OutcomeInconclusive, message)
}

// WithEvidence returns v with evidence merged into a fresh map.
func (v Verdict) WithEvidence(evidence map[string]string) Verdict {
	out := v.Clone()
	if len(evidence) == 0 {
		return out
	}
	if out.Evidence == nil {
		out.Evidence = make(map[string]string, len(evidence))
	}
	for k, val := range evidence {
		out.Evidence[k] = val
	}
	return out
}
