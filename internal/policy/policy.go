// Package policy folds per-check verdicts into a single trust decision.
//
// Policies are pure: the same verdict sequence always yields the same
// assessment. Verdict order is registration order and decides which check is
// named in Reason.
package policy

import (
	"fmt"
	"strings"

	"vaultguard/internal/checks"
)

const (
	NameAnySuspicious = "any-suspicious"
	NameStrict        = "strict"
	NameWeighted      = "weighted"
)

// TrustAssessment is the aggregate result of one engine run.
type TrustAssessment struct {
	Trusted  bool             `json:"trusted"`
	Verdicts []checks.Verdict `json:"verdicts"`
	// Reason is the ID of the first verdict that made the assessment untrusted,
	// or empty when trusted.
	Reason string `json:"reason"`
	Policy string `json:"policy"`
	// Score is only meaningful for the weighted policy.
	Score float64 `json:"score,omitempty"`
	// Inconclusive lists the IDs of checks that could not reach a finding.
	Inconclusive []string `json:"inconclusive,omitempty"`
}

// Policy is an aggregation strategy.
type Policy interface {
	Name() string
	Aggregate(verdicts []checks.Verdict) TrustAssessment
}

func newAssessment(name string, verdicts []checks.Verdict) TrustAssessment {
	a := TrustAssessment{
		Trusted:  true,
		Verdicts: make([]checks.Verdict, len(verdicts)),
		Policy:   name,
	}
	for i, v := range verdicts {
		a.Verdicts[i] = v.Clone()
		if v.Outcome == checks.OutcomeInconclusive {
			a.Inconclusive = append(a.Inconclusive, v.CheckID)
		}
	}
	return a
}

// AnySuspicious is the default policy: trusted iff no verdict is Suspicious.
// Inconclusive verdicts are surfaced but do not block trust.
type AnySuspicious struct{}

func (AnySuspicious) Name() string { return NameAnySuspicious }

func (p AnySuspicious) Aggregate(verdicts []checks.Verdict) TrustAssessment {
	a := newAssessment(p.Name(), verdicts)
	for _, v := range verdicts {
		if v.Outcome == checks.OutcomeSuspicious {
			a.Trusted = false
			a.Reason = v.CheckID
			break
		}
	}
	return a
}

// Strict treats Inconclusive as Suspicious, for flows that demand a live
// determination from every check (for example high-value transactions that
// require a completed pin check).
type Strict struct{}

func (Strict) Name() string { return NameStrict }

func (p Strict) Aggregate(verdicts []checks.Verdict) TrustAssessment {
	a := newAssessment(p.Name(), verdicts)
	for _, v := range verdicts {
		if v.Outcome != checks.OutcomeClean {
			a.Trusted = false
			a.Reason = v.CheckID
			break
		}
	}
	return a
}

// Weighted sums per-check weights over Suspicious verdicts, plus
// weight*InconclusiveFactor over Inconclusive ones, and is untrusted once the
// score reaches Threshold. Unlisted checks weigh DefaultWeight.
type Weighted struct {
	Weights            map[string]float64
	DefaultWeight      float64
	Threshold          float64
	InconclusiveFactor float64
}

func NewWeighted(cfg WeightedConfig) (*Weighted, error) {
	w := &Weighted{
		Weights:            make(map[string]float64, len(cfg.Weights)),
		DefaultWeight:      1,
		Threshold:          1,
		InconclusiveFactor: cfg.InconclusiveFactor,
	}
	if cfg.Threshold != 0 {
		w.Threshold = cfg.Threshold
	}
	if w.Threshold < 0 {
		return nil, checks.ConfigErrorf("", "weighted policy threshold must be > 0, got %v", cfg.Threshold)
	}
	if cfg.InconclusiveFactor < 0 || cfg.InconclusiveFactor > 1 {
		return nil, checks.ConfigErrorf("", "weighted policy inconclusive factor must be within [0, 1], got %v", cfg.InconclusiveFactor)
	}
	for id, weight := range cfg.Weights {
		if weight < 0 {
			return nil, checks.ConfigErrorf(id, "weight must be >= 0, got %v", weight)
		}
		w.Weights[id] = weight
	}
	return w, nil
}

func (*Weighted) Name() string { return NameWeighted }

func (p *Weighted) weight(id string) float64 {
	if w, ok := p.Weights[id]; ok {
		return w
	}
	return p.DefaultWeight
}

func (p *Weighted) Aggregate(verdicts []checks.Verdict) TrustAssessment {
	a := newAssessment(p.Name(), verdicts)
	first := ""
	for _, v := range verdicts {
		var contrib float64
		switch v.Outcome {
		case checks.OutcomeSuspicious:
			contrib = p.weight(v.CheckID)
		case checks.OutcomeInconclusive:
			contrib = p.weight(v.CheckID) * p.InconclusiveFactor
		}
		if contrib > 0 && first == "" {
			first = v.CheckID
		}
		a.Score += contrib
	}
	if a.Score >= p.Threshold {
		a.Trusted = false
		a.Reason = first
	}
	return a
}

type WeightedConfig struct {
	Weights            map[string]float64
	Threshold          float64
	InconclusiveFactor float64
}

// Names lists the selectable policies.
func Names() []string {
	return []string{NameAnySuspicious, NameStrict, NameWeighted}
}

// ByName selects a policy. An empty name selects AnySuspicious.
func ByName(name string, weighted WeightedConfig) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameAnySuspicious:
		return AnySuspicious{}, nil
	case NameStrict:
		return Strict{}, nil
	case NameWeighted:
		return NewWeighted(weighted)
	default:
		return nil, checks.ConfigErrorf("", "unknown aggregation policy %q (must be one of: %s)", name, strings.Join(Names(), ", "))
	}
}

// Summary renders a one-line description of a.
func Summary(a TrustAssessment) string {
	if a.Trusted {
		if len(a.Inconclusive) > 0 {
			return fmt.Sprintf("trusted (%d checks, inconclusive: %s)", len(a.Verdicts), strings.Join(a.Inconclusive, ", "))
		}
		return fmt.Sprintf("trusted (%d checks)", len(a.Verdicts))
	}
	return fmt.Sprintf("untrusted: %s (%d checks)", a.Reason, len(a.Verdicts))
}

// Process exit codes for an assessment.
const (
	ExitTrusted             = 0
	ExitUntrusted           = 1
	ExitTrustedInconclusive = 2
	ExitConfiguration       = 3
)

// ExitCode maps a onto the process exit code reported by the CLI.
func ExitCode(a TrustAssessment) int {
	switch {
	case !a.Trusted:
		return ExitUntrusted
	case len(a.Inconclusive) > 0:
		return ExitTrustedInconclusive
	default:
		return ExitTrusted
	}
}
