package checks

import "context"

// Check converts probe evidence into a Verdict.
//
// Evaluate owns its probes exclusively. It should return a Verdict for every
// finding it can make; an error (typically wrapping probe.ErrUnavailable)
// means no determination was possible and the engine records the check as
// Inconclusive.
type Check interface {
	ID() string
	Title() string
	Description() string

	Evaluate(ctx context.Context) (Verdict, error)
}

type Option struct {
	Name        string
	Description string
	Default     string
}

// ConfigurableCheck accepts string options before registration. Checks are
// never reconfigured once they are in a Registry.
type ConfigurableCheck interface {
	Check
	Options() []Option
	Configure(opts map[string]string) error
}
