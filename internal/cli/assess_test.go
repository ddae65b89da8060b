package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"vaultguard/internal/checks"
	"vaultguard/internal/checks/builtin"
	"vaultguard/internal/config"
	"vaultguard/internal/flags"
	"vaultguard/internal/output"
	"vaultguard/internal/platform"
	"vaultguard/internal/policy"
	"vaultguard/internal/probe"
)

const testPin = "sha256/r/mIkG3eEpVdm+u/ko/cwxzOMo1bk4TyHIlByibiA5E="

type fakeLoader map[string]bool

func (l fakeLoader) TryLoad(name string) (bool, error) { return l[name], nil }

// fakeHandshaker serves pins, or blocks until ctx ends when hang is set.
type fakeHandshaker struct {
	pins []string
	hang bool
}

func (h fakeHandshaker) Handshake(ctx context.Context, hostname string) (probe.HandshakeState, error) {
	if h.hang {
		<-ctx.Done()
		return probe.HandshakeState{}, ctx.Err()
	}
	return probe.HandshakeState{ChainPins: h.pins}, nil
}

type noFiles struct{}

type fakeTracer probe.TracerInfo

func (t fakeTracer) Tracer(ctx context.Context) (probe.TracerInfo, error) {
	return probe.TracerInfo(t), nil
}

func (noFiles) Exists(path string) (bool, error) { return false, nil }

func genuineHost() hostCapabilities {
	return hostCapabilities{
		Loader: fakeLoader{},
		Properties: platform.StaticProperties{
			Fingerprint:  "google/panther/panther:14/UQ1A/user/release-keys",
			Model:        "Pixel 7",
			Manufacturer: "Google",
			Brand:        "google",
			Device:       "panther",
		},
		Handshaker: fakeHandshaker{pins: []string{testPin}},
		Stater:     noFiles{},
		Clock:      func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) },
		Tracer:     fakeTracer{},
	}
}

func withHost(t *testing.T, caps hostCapabilities) {
	t.Helper()
	prev := newHostCapabilities
	newHostCapabilities = func(*config.Config, io.Writer) (hostCapabilities, error) { return caps, nil }
	t.Cleanup(func() { newHostCapabilities = prev })
}

// newTestCommand mirrors the assess command's flag wiring onto a fresh
// config, then parses args.
func newTestCommand(t *testing.T, args ...string) (*cobra.Command, *config.Config) {
	t.Helper()
	prevPath := configPath
	t.Cleanup(func() { configPath = prevPath })

	c := config.New()
	cmd := &cobra.Command{Use: "assess"}
	cmd.Flags().BoolVar(&c.Runtime.Verbose, flags.FlagVerbose, false, "")
	cmd.Flags().StringVar(&configPath, flags.FlagConfig, "", "")
	registerAssessFlags(cmd, c)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v): %v", args, err)
	}
	return cmd, c
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	cmd, c := newTestCommand(t, args...)
	var out, errOut bytes.Buffer
	code = runAssess(context.Background(), cmd, c, &out, &errOut)
	return code, out.String(), errOut.String()
}

func decodeEvents(t *testing.T, s string) []output.Event {
	t.Helper()
	var events []output.Event
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		var ev output.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestRunAssess_Trusted(t *testing.T) {
	withHost(t, genuineHost())

	code, stdout, stderr := run(t)
	if code != policy.ExitTrusted {
		t.Fatalf("expected exit %d, got %d; stderr=%s", policy.ExitTrusted, code, stderr)
	}
	for _, want := range []string{"[CLEAN]", "instrumentation", "debugger", "environment", "clock", "Assessment:", "trusted (4 checks)"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "Registered 4 checks.") {
		t.Fatalf("expected progress line on stderr, got %q", stderr)
	}
}

func TestRunAssess_InstrumentationIsUntrusted(t *testing.T) {
	caps := genuineHost()
	caps.Loader = fakeLoader{"frida": true}
	withHost(t, caps)

	code, stdout, stderr := run(t, "--no-console", "--emit", "ndjson")
	if code != policy.ExitUntrusted {
		t.Fatalf("expected exit %d, got %d; stderr=%s", policy.ExitUntrusted, code, stderr)
	}
	if stderr != "" {
		t.Fatalf("--no-console must silence progress lines, got %q", stderr)
	}

	events := decodeEvents(t, stdout)
	if len(events) != 6 {
		t.Fatalf("expected started + 4 verdicts + finished, got %d events:\n%s", len(events), stdout)
	}
	if events[0].Type != output.EventAssessmentStarted || events[0].Checks != 4 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Verdict == nil || events[1].CheckID != builtin.InstrumentationID || events[1].Outcome != "SUSPICIOUS" {
		t.Fatalf("unexpected instrumentation event %+v", events[1])
	}
	last := events[len(events)-1]
	if last.Type != output.EventAssessmentFinished || last.Trusted == nil || *last.Trusted {
		t.Fatalf("unexpected finished event %+v", last)
	}
	if last.ExitCode != policy.ExitUntrusted || last.Reason != builtin.InstrumentationID {
		t.Fatalf("unexpected finished event %+v", last)
	}
}

func TestRunAssess_HungChannelIsInconclusive(t *testing.T) {
	caps := genuineHost()
	caps.Handshaker = fakeHandshaker{hang: true}
	withHost(t, caps)

	path := writeConfig(t, `
checks:
  channel:
    enabled: true
    host: api.example.com
    pins: [`+testPin+`]
`)
	start := time.Now()
	code, stdout, stderr := run(t, "--config", path, "--set", "channel.timeout=50ms")
	if code != policy.ExitTrustedInconclusive {
		t.Fatalf("expected exit %d, got %d; stdout=%s stderr=%s", policy.ExitTrustedInconclusive, code, stdout, stderr)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung channel delayed the assessment: %s", elapsed)
	}
	if !strings.Contains(stdout, "[INCONCLUSIVE]") || !strings.Contains(stdout, "inconclusive: channel") {
		t.Fatalf("unexpected stdout:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Using configuration "+path) {
		t.Fatalf("expected config source on stderr, got %q", stderr)
	}
}

func TestRunAssess_WritesFiles(t *testing.T) {
	withHost(t, genuineHost())
	dir := t.TempDir()
	outPath := filepath.Join(dir, "nested", "assessment.json")
	reportPath := filepath.Join(dir, "report.md")

	code, _, stderr := run(t, "--no-console", "--out", outPath, "--report", reportPath, "--policy", "strict")
	if code != policy.ExitTrusted {
		t.Fatalf("expected exit 0, got %d; stderr=%s", code, stderr)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read --out: %v", err)
	}
	var a policy.TrustAssessment
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("--out is not a single assessment object: %v\n%s", err, data)
	}
	if !a.Trusted || a.Policy != policy.NameStrict || len(a.Verdicts) != 4 {
		t.Fatalf("unexpected assessment %+v", a)
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read --report: %v", err)
	}
	if !strings.Contains(string(report), "# Vaultguard Trust Report") {
		t.Fatalf("unexpected report:\n%s", report)
	}
}

func TestRunAssess_ConfigurationErrors(t *testing.T) {
	withHost(t, genuineHost())
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown policy", args: []string{"--policy", "majority"}, want: "--policy"},
		{name: "zero timeout", args: []string{"--timeout", "0s"}, want: "--timeout"},
		{name: "explicit config missing", args: []string{"--config", missing}, want: "config file"},
		{name: "unknown check in selector", args: []string{"--checks", "nope"}, want: "check not found: nope"},
		{name: "disabled check in selector", args: []string{"--checks", "channel"}, want: "disabled"},
		{name: "set on unknown check", args: []string{"--set", "nope.x=1"}, want: "unknown check ID"},
		{name: "set on disabled check", args: []string{"--set", "root-access.paths=/su"}, want: "not enabled"},
		{name: "set unknown option", args: []string{"--set", "clock.century=21"}, want: "unknown option"},
		{name: "set bad value", args: []string{"--set", "clock.min_year=2200"}, want: "min_year"},
		{name: "bad emit", args: []string{"--emit", "yaml"}, want: "--emit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := run(t, tt.args...)
			if code != policy.ExitConfiguration {
				t.Fatalf("expected exit %d, got %d; stdout=%s", policy.ExitConfiguration, code, stdout)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Fatalf("expected stderr mentioning %q, got %q", tt.want, stderr)
			}
		})
	}
}

func TestRunAssess_SelectorNarrowsRun(t *testing.T) {
	withHost(t, genuineHost())

	code, stdout, stderr := run(t, "--checks", "clock", "--no-console", "--emit", "json")
	if code != policy.ExitTrusted {
		t.Fatalf("expected exit 0, got %d; stderr=%s", code, stderr)
	}
	var a policy.TrustAssessment
	if err := json.Unmarshal([]byte(stdout), &a); err != nil {
		t.Fatalf("invalid JSON aggregate: %v\n%s", err, stdout)
	}
	if len(a.Verdicts) != 1 || a.Verdicts[0].CheckID != builtin.ClockID {
		t.Fatalf("expected only the clock verdict, got %+v", a.Verdicts)
	}
}

func TestRunAssess_AttachedDebuggerIsUntrusted(t *testing.T) {
	caps := genuineHost()
	caps.Tracer = fakeTracer{PID: 4242, Name: "gdb"}
	withHost(t, caps)

	code, stdout, stderr := run(t)
	if code != policy.ExitUntrusted {
		t.Fatalf("expected exit %d, got %d; stderr=%s", policy.ExitUntrusted, code, stderr)
	}
	if !strings.Contains(stdout, "Debugger attached: gdb") {
		t.Fatalf("unexpected stdout:\n%s", stdout)
	}

	code, _, stderr = run(t, "--set", "debugger.allowed_tracers=gdb")
	if code != policy.ExitTrusted {
		t.Fatalf("expected allowed tracer to be trusted, got %d; stderr=%s", code, stderr)
	}
}

func TestBuildRegistry_OptionsAppliedBeforeRegistration(t *testing.T) {
	c := config.New()
	c.Assessment.Set = []string{"clock.min_year=2030"}
	c.Assessment.Selector = "clock"

	reg, err := buildRegistry(c, genuineHost())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	if ids := reg.IDs(); len(ids) != 1 || ids[0] != builtin.ClockID {
		t.Fatalf("expected only clock registered, got %v", ids)
	}
	clock, _ := reg.Get(builtin.ClockID)
	v, err := clock.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// The host clock reads 2026, outside the configured window.
	if v.Outcome != checks.OutcomeSuspicious {
		t.Fatalf("expected --set to reach the registered check, got %s", v.Outcome)
	}
}

func TestSelectChecks(t *testing.T) {
	clock, _ := builtin.NewClockCheck(builtin.ClockConfig{}, nil)
	built := map[string]checks.Check{builtin.ClockID: clock}

	tests := []struct {
		name     string
		selector string
		want     string
		wantErr  string
	}{
		{name: "empty selects all", selector: "", want: "clock"},
		{name: "named", selector: " clock, ", want: "clock"},
		{name: "disabled", selector: "debugger", wantErr: "checks.debugger"},
		{name: "unknown", selector: "nope", wantErr: "check not found: nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectChecks(tt.selector, built)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectChecks: %v", err)
			}
			if len(got) != 1 || !got[tt.want] {
				t.Fatalf("expected %s selected, got %v", tt.want, got)
			}
		})
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
assessment:
  policy: strict
  timeout: 3s
  set: ["clock.min_year=2015"]
output:
  console_format: ndjson
`)
	cmd, flagCfg := newTestCommand(t, "--config", path, "--policy", "weighted", "--set", "clock.max_year=2050")

	c, source, err := loadConfig(cmd, flagCfg)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if source != path {
		t.Fatalf("expected source %s, got %q", path, source)
	}
	if c.Assessment.Policy != "weighted" {
		t.Fatalf("flag did not override file policy: %q", c.Assessment.Policy)
	}
	if c.Assessment.Timeout != 3*time.Second || c.Output.ConsoleFormat != "ndjson" {
		t.Fatalf("unset flags must not override the file: %+v %+v", c.Assessment, c.Output)
	}
	if got := strings.Join(c.Assessment.Set, ","); got != "clock.min_year=2015,clock.max_year=2050" {
		t.Fatalf("expected --set to extend the file entries, got %q", got)
	}
}

func TestLoadConfig_NoFileYieldsDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cmd, flagCfg := newTestCommand(t)
	c, source, err := loadConfig(cmd, flagCfg)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if source != "" {
		t.Fatalf("expected no source, got %q", source)
	}
	if c.Assessment.Policy != policy.NameAnySuspicious || c.Assessment.Timeout != 5*time.Second {
		t.Fatalf("expected defaults, got %+v", c.Assessment)
	}
}

func TestBuildEngine_SkipsTimeoutsForChecksNotInRun(t *testing.T) {
	c := config.New()
	c.Assessment.CheckTimeouts = map[string]time.Duration{builtin.ChannelID: time.Second, builtin.ClockID: time.Second}
	reg, err := buildRegistry(c, genuineHost())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	var logw bytes.Buffer
	if _, err := buildEngine(c, reg, nil, &logw); err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	if !strings.Contains(logw.String(), "Ignoring check timeout for channel") {
		t.Fatalf("expected a note about the channel timeout, got %q", logw.String())
	}
}

func TestPropertyReader(t *testing.T) {
	full := probe.DeviceProperties{Fingerprint: "f", Model: "m", Manufacturer: "x", Brand: "b", Device: "d"}
	tests := []struct {
		name     string
		override probe.DeviceProperties
		want     string
	}{
		{name: "none", override: probe.DeviceProperties{}, want: "*platform.DMIProperties"},
		{name: "partial", override: probe.DeviceProperties{Model: "Emulator"}, want: "platform.Overlay"},
		{name: "complete", override: full, want: "platform.StaticProperties"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fmt.Sprintf("%T", propertyReader(tt.override)); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
