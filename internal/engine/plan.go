package engine

import (
	"time"

	"vaultguard/internal/checks"
)

// assessmentPlan is the snapshot of checks taken at the start of one
// assessment. Concurrent assessments each hold their own plan and share only
// the check values.
type assessmentPlan struct {
	Checks []plannedCheck
}

type plannedCheck struct {
	Check checks.Check
	// Timeout bounds this check alone; zero means only the overall deadline
	// applies.
	Timeout time.Duration
}

func (e *Engine) newPlan() *assessmentPlan {
	list := e.registry.List()
	p := &assessmentPlan{Checks: make([]plannedCheck, 0, len(list))}
	for _, c := range list {
		p.Checks = append(p.Checks, plannedCheck{Check: c, Timeout: e.checkTimeouts[c.ID()]})
	}
	return p
}

func (p *assessmentPlan) IDs() []string {
	ids := make([]string, len(p.Checks))
	for i, pc := range p.Checks {
		ids[i] = pc.Check.ID()
	}
	return ids
}
