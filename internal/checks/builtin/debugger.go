package builtin

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const DebuggerID = "debugger"

type DebuggerConfig struct {
	ID string
	// AllowedTracers are tracer command names that do not count as a
	// debugger, for example a profiler the host runs under.
	AllowedTracers []string
}

// DebuggerCheck reports Suspicious when a tracer is attached to the current
// process and its name is not in the allowed set.
type DebuggerCheck struct {
	id      string
	allowed []string
	reader  probe.TracerReader
	tracer  *probe.TracerProbe
}

func NewDebuggerCheck(cfg DebuggerConfig, reader probe.TracerReader) (*DebuggerCheck, error) {
	if cfg.ID == "" {
		cfg.ID = DebuggerID
	}
	tracer, err := probe.NewTracerProbe(reader)
	if err != nil {
		return nil, checks.ConfigErrorf(cfg.ID, "%v", err)
	}
	return &DebuggerCheck{
		id:      cfg.ID,
		allowed: cleanList(cfg.AllowedTracers),
		reader:  reader,
		tracer:  tracer,
	}, nil
}

func (c *DebuggerCheck) ID() string { return c.id }

func (c *DebuggerCheck) Title() string { return "No Debugger Attached" }

func (c *DebuggerCheck) Description() string {
	return "Reads the tracer attached to the current process. Tracers named in allowed_tracers are reported but not treated as a debugger."
}

func (c *DebuggerCheck) Options() []checks.Option {
	return []checks.Option{
		{Name: "allowed_tracers", Description: "Tracer command names that are not treated as a debugger (';'-separated).", Default: ""},
	}
}

func (c *DebuggerCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	if v, ok := optList(opts, "allowed_tracers"); ok {
		c.allowed = v
	}
	return nil
}

func (c *DebuggerCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	ev, err := c.tracer.Observe(ctx)
	if err != nil {
		return checks.Verdict{}, err
	}
	pid, _ := ev.Int(probe.KeyTracerPID)
	name, _ := ev.String(probe.KeyTracerName)
	evidence := ev.Strings()

	if pid == 0 {
		return checks.CleanVerdict(c.id, "").WithEvidence(evidence), nil
	}
	label := name
	if label == "" {
		label = "pid " + strconv.Itoa(pid)
	}
	if name != "" && slices.Contains(c.allowed, name) {
		return checks.CleanVerdict(c.id, fmt.Sprintf("Traced by allowed tracer %s", label)).WithEvidence(evidence), nil
	}
	return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Debugger attached: %s", label)).WithEvidence(evidence), nil
}
