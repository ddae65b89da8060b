package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"vaultguard/internal/checks"
	"vaultguard/internal/checks/builtin"
	"vaultguard/internal/config"
	"vaultguard/internal/engine"
	"vaultguard/internal/output"
	"vaultguard/internal/platform"
	"vaultguard/internal/policy"
	"vaultguard/internal/probe"
)

// checkOrder is the registration order, which is also the verdict order of
// every assessment.
var checkOrder = []string{
	builtin.InstrumentationID,
	builtin.DebuggerID,
	builtin.EnvironmentID,
	builtin.ChannelID,
	builtin.ClockID,
	builtin.RootAccessID,
}

// hostCapabilities are the platform implementations the checks observe
// through.
type hostCapabilities struct {
	Loader     probe.LibraryLoader
	Lister     probe.ImageLister
	Properties probe.PropertyReader
	Handshaker probe.Handshaker
	Stater     probe.FileStater
	Clock      probe.Clock
	Tracer     probe.TracerReader
}

// newHostCapabilities is replaced in tests.
var newHostCapabilities = defaultHostCapabilities

func defaultHostCapabilities(cfg *config.Config, logw io.Writer) (hostCapabilities, error) {
	h, err := platform.NewTLSHandshaker(
		platform.WithPort(cfg.Checks.Channel.Port),
		platform.WithVerbose(cfg.Runtime.Verbose, logw),
	)
	if err != nil {
		return hostCapabilities{}, err
	}
	caps := hostCapabilities{
		Loader:     platform.NewSearchPathLoader(cfg.Checks.Instrumentation.LibraryDirs),
		Properties: propertyReader(cfg.Checks.Environment.Properties),
		Handshaker: h,
		Stater:     platform.OSFileStater{},
		Clock:      time.Now,
		Tracer:     platform.NewProcStatusTracer(),
	}
	if len(cfg.Checks.Instrumentation.ImageMarkers) > 0 {
		caps.Lister = platform.NewProcMapsLister()
	}
	return caps, nil
}

// propertyReader reads the host identity from DMI unless the configuration
// supplies every field.
func propertyReader(override probe.DeviceProperties) probe.PropertyReader {
	var none probe.DeviceProperties
	switch {
	case override == none:
		return platform.NewDMIProperties()
	case override.Fingerprint != "" && override.Model != "" && override.Manufacturer != "" &&
		override.Brand != "" && override.Device != "":
		return platform.StaticProperties(override)
	default:
		return platform.Overlay{Base: platform.NewDMIProperties(), Override: override}
	}
}

func enabled(cfg *config.Config, id string) bool {
	switch id {
	case builtin.InstrumentationID:
		return cfg.Checks.Instrumentation.Enabled
	case builtin.EnvironmentID:
		return cfg.Checks.Environment.Enabled
	case builtin.ChannelID:
		return cfg.Checks.Channel.Enabled
	case builtin.ClockID:
		return cfg.Checks.Clock.Enabled
	case builtin.RootAccessID:
		return cfg.Checks.RootAccess.Enabled
	case builtin.DebuggerID:
		return cfg.Checks.Debugger.Enabled
	}
	return false
}

func newCheck(id string, cfg *config.Config, caps hostCapabilities) (checks.Check, error) {
	switch id {
	case builtin.InstrumentationID:
		ic := cfg.Checks.Instrumentation
		c, err := builtin.NewInstrumentationCheck(builtin.InstrumentationConfig{
			Candidates:   ic.Candidates,
			ImageMarkers: ic.ImageMarkers,
			Exhaustive:   ic.Exhaustive,
		}, caps.Loader, caps.Lister)
		if err != nil {
			return nil, err
		}
		return c, nil
	case builtin.DebuggerID:
		c, err := builtin.NewDebuggerCheck(builtin.DebuggerConfig{
			AllowedTracers: cfg.Checks.Debugger.AllowedTracers,
		}, caps.Tracer)
		if err != nil {
			return nil, err
		}
		return c, nil
	case builtin.EnvironmentID:
		ec := cfg.Checks.Environment
		patterns, err := builtin.ParsePatterns(ec.Patterns)
		if err != nil {
			return nil, checks.ConfigErrorf(id, "%v", err)
		}
		c, err := builtin.NewEnvironmentCheck(builtin.EnvironmentConfig{
			Patterns:   patterns,
			IgnoreCase: ec.IgnoreCase,
		}, caps.Properties)
		if err != nil {
			return nil, err
		}
		return c, nil
	case builtin.ChannelID:
		cc := cfg.Checks.Channel
		c, err := builtin.NewChannelCheck(builtin.ChannelConfig{
			Host:    cc.Host,
			Pins:    cc.Pins,
			Timeout: cc.Timeout,
			Depth:   cc.Depth,
		}, caps.Handshaker)
		if err != nil {
			return nil, err
		}
		return c, nil
	case builtin.ClockID:
		c, err := builtin.NewClockCheck(builtin.ClockConfig{
			MinYear: cfg.Checks.Clock.MinYear,
			MaxYear: cfg.Checks.Clock.MaxYear,
		}, caps.Clock)
		if err != nil {
			return nil, err
		}
		return c, nil
	case builtin.RootAccessID:
		c, err := builtin.NewRootAccessCheck(builtin.RootAccessConfig{
			Paths: cfg.Checks.RootAccess.Paths,
		}, caps.Stater)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown check ID %q", id)
	}
}

// buildRegistry constructs the enabled checks, applies --set options, and
// registers the checks the selector names (all of them when it is empty).
// Options are applied before any check is registered.
func buildRegistry(cfg *config.Config, caps hostCapabilities) (*checks.Registry, error) {
	built := make(map[string]checks.Check)
	for _, id := range checkOrder {
		if !enabled(cfg, id) {
			continue
		}
		c, err := newCheck(id, cfg, caps)
		if err != nil {
			return nil, err
		}
		built[id] = c
	}

	if err := applyCheckOptionsIfAny(cfg, built); err != nil {
		return nil, err
	}

	selected, err := selectChecks(cfg.Assessment.Selector, built)
	if err != nil {
		return nil, err
	}

	reg := checks.NewRegistry()
	for _, id := range checkOrder {
		if !selected[id] {
			continue
		}
		if err := reg.Register(built[id]); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// selectChecks reports which built checks the comma-separated selector names.
// An empty selector selects every built check.
func selectChecks(selector string, built map[string]checks.Check) (map[string]bool, error) {
	selected := make(map[string]bool, len(built))
	if strings.TrimSpace(selector) == "" {
		for id := range built {
			selected[id] = true
		}
		return selected, nil
	}
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := built[id]; !ok {
			if contains(checkOrder, id) {
				return nil, fmt.Errorf("check %q is disabled; enable it under checks.%s in the config file", id, configKey(id))
			}
			return nil, fmt.Errorf("check not found: %s", id)
		}
		selected[id] = true
	}
	return selected, nil
}

// applyCheckOptionsIfAny applies per-check configuration supplied via
// repeated --set flags.
//
// --set values are parsed as "checkID.option=value" and routed to the matching
// check's Configure method before the check is registered for a run.
//
// Example:
//
//	vaultguard assess --set clock.min_year=2020
func applyCheckOptionsIfAny(cfg *config.Config, built map[string]checks.Check) error {
	if len(cfg.Assessment.Set) == 0 {
		return nil
	}

	assignments, err := config.ParseCheckOptionAssignments(cfg.Assessment.Set)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c, ok := built[id]
		if !ok {
			if contains(checkOrder, id) {
				return fmt.Errorf("check %q is not enabled", id)
			}
			return fmt.Errorf("unknown check ID %q", id)
		}
		cc, ok := c.(checks.ConfigurableCheck)
		if !ok {
			return fmt.Errorf("check %q does not support options", id)
		}
		if err := cc.Configure(assignments[id]); err != nil {
			return err
		}
	}
	return nil
}

// catalog builds every known check for listing, enabled or not. A channel
// check without a configured host or pins gets placeholders so its options
// can still be described.
func catalog(cfg *config.Config, caps hostCapabilities) (*checks.Registry, error) {
	c := *cfg
	if strings.TrimSpace(c.Checks.Channel.Host) == "" {
		c.Checks.Channel.Host = "api.example.com"
	}
	if len(c.Checks.Channel.Pins) == 0 {
		c.Checks.Channel.Pins = []string{platform.PinPrefix + "<base64 SPKI digest>"}
	}

	reg := checks.NewRegistry()
	for _, id := range checkOrder {
		chk, err := newCheck(id, &c, caps)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(chk); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildEngine(cfg *config.Config, reg *checks.Registry, out *output.Manager, logw io.Writer) (*engine.Engine, error) {
	pol, err := policy.ByName(cfg.Assessment.Policy, cfg.WeightedPolicy())
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithPolicy(pol),
		engine.WithTimeout(cfg.Assessment.Timeout),
		engine.WithOutput(out),
		engine.WithVerbose(cfg.Runtime.Verbose, logw),
	}
	if cfg.Assessment.Concurrency > 0 {
		opts = append(opts, engine.WithConcurrency(cfg.Assessment.Concurrency))
	}

	ids := make([]string, 0, len(cfg.Assessment.CheckTimeouts))
	for id := range cfg.Assessment.CheckTimeouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := reg.Get(id); !ok {
			// Timeouts for disabled checks are kept in shared config files.
			if !cfg.Output.NoConsole {
				fmt.Fprintf(logw, "Ignoring check timeout for %s (not in this run).\n", id)
			}
			continue
		}
		opts = append(opts, engine.WithCheckTimeout(id, cfg.Assessment.CheckTimeouts[id]))
	}

	return engine.New(reg, opts...)
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterOutcome)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

func configKey(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
