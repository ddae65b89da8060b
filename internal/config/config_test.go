package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultsAreValid(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults returned error: %v", err)
	}
	if cfg.Checks.Channel.Enabled {
		t.Fatalf("channel check must be opt-in (needs a host and pins)")
	}
	if !cfg.Checks.Instrumentation.Enabled || !cfg.Checks.Environment.Enabled || !cfg.Checks.Clock.Enabled || !cfg.Checks.Debugger.Enabled {
		t.Fatalf("unexpected enabled defaults: %+v", cfg.Checks)
	}
	if len(cfg.Checks.Environment.Patterns) != 6 {
		t.Fatalf("expected 6 default patterns, got %v", cfg.Checks.Environment.Patterns)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vaultguard.yaml")
	data := `
assessment:
  policy: weighted
  timeout: 3s
  check_timeouts:
    channel: 1500ms
  weights:
    environment: 0.5
checks:
  instrumentation:
    candidates: [frida, xposed]
    exhaustive: true
  environment:
    ignore_case: true
    properties:
      model: Pixel 7
  channel:
    enabled: true
    host: api.example.com
    pins:
      - sha256/r/mIkG3eEpVdm+u/ko/cwxzOMo1bk4TyHIlByibiA5E=
  root_access:
    enabled: true
  debugger:
    allowed_tracers: [perf, strace]
output:
  console_format: ndjson
runtime:
  verbose: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Assessment.Policy != "weighted" || cfg.Assessment.Timeout != 3*time.Second {
		t.Fatalf("unexpected assessment %+v", cfg.Assessment)
	}
	if cfg.Assessment.CheckTimeouts["channel"] != 1500*time.Millisecond {
		t.Fatalf("unexpected check timeouts %v", cfg.Assessment.CheckTimeouts)
	}
	if !reflect.DeepEqual(cfg.Checks.Instrumentation.Candidates, []string{"frida", "xposed"}) || !cfg.Checks.Instrumentation.Exhaustive {
		t.Fatalf("unexpected instrumentation %+v", cfg.Checks.Instrumentation)
	}
	// Fields absent from the file keep their defaults.
	if !cfg.Checks.Instrumentation.Enabled || len(cfg.Checks.Instrumentation.ImageMarkers) != 2 {
		t.Fatalf("defaults lost: %+v", cfg.Checks.Instrumentation)
	}
	if cfg.Checks.Environment.Properties.Model != "Pixel 7" || !cfg.Checks.Environment.IgnoreCase {
		t.Fatalf("unexpected environment %+v", cfg.Checks.Environment)
	}
	if !cfg.Checks.Channel.Enabled || cfg.Checks.Channel.Port != 443 || cfg.Checks.Channel.Timeout != 2*time.Second {
		t.Fatalf("unexpected channel %+v", cfg.Checks.Channel)
	}
	if !cfg.Checks.RootAccess.Enabled || len(cfg.Checks.RootAccess.Paths) == 0 {
		t.Fatalf("unexpected root access %+v", cfg.Checks.RootAccess)
	}
	if !cfg.Checks.Debugger.Enabled || !reflect.DeepEqual(cfg.Checks.Debugger.AllowedTracers, []string{"perf", "strace"}) {
		t.Fatalf("unexpected debugger %+v", cfg.Checks.Debugger)
	}
	if cfg.Output.ConsoleFormat != "ndjson" || !cfg.Runtime.Verbose {
		t.Fatalf("unexpected output/runtime %+v %+v", cfg.Output, cfg.Runtime)
	}
	if w := cfg.WeightedPolicy(); w.Weights["environment"] != 0.5 {
		t.Fatalf("unexpected weighted config %+v", w)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, New()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("assessment: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestMarshal_RoundTripsThroughLoad(t *testing.T) {
	cfg := New()
	cfg.Assessment.Policy = "strict"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Assessment.Policy != "strict" || got.Assessment.Timeout != cfg.Assessment.Timeout {
		t.Fatalf("unexpected reload %+v", got.Assessment)
	}
}

func TestValidate_NormalizesCommaDelimitedLists(t *testing.T) {
	cfg := New()
	cfg.Output.Emit = []string{"JSON, ndjson", ",,"}
	cfg.Output.ConsoleFilterOutcome = []string{"suspicious, Inconclusive"}
	cfg.Assessment.Set = []string{"clock.min_year=2020, clock.max_year=2030"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if want := []string{"json", "ndjson"}; !reflect.DeepEqual(cfg.Output.Emit, want) {
		t.Fatalf("Emit normalized mismatch: got %v want %v", cfg.Output.Emit, want)
	}
	if want := []string{"SUSPICIOUS", "INCONCLUSIVE"}; !reflect.DeepEqual(cfg.Output.ConsoleFilterOutcome, want) {
		t.Fatalf("filter normalized mismatch: got %v want %v", cfg.Output.ConsoleFilterOutcome, want)
	}
	if len(cfg.Assessment.Set) != 2 {
		t.Fatalf("expected 2 --set entries, got %v", cfg.Assessment.Set)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown policy", mutate: func(c *Config) { c.Assessment.Policy = "majority" }, want: "--policy"},
		{name: "zero timeout", mutate: func(c *Config) { c.Assessment.Timeout = 0 }, want: "--timeout"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Assessment.Concurrency = -1 }, want: "--concurrency"},
		{name: "zero check timeout", mutate: func(c *Config) { c.Assessment.CheckTimeouts = map[string]time.Duration{"clock": 0} }, want: "check_timeouts.clock"},
		{name: "factor above one", mutate: func(c *Config) { c.Assessment.InconclusiveFactor = 1.5 }, want: "inconclusive_factor"},
		{name: "channel without host", mutate: func(c *Config) {
			c.Checks.Channel.Enabled = true
			c.Checks.Channel.Pins = []string{"sha256/x"}
		}, want: "checks.channel.host"},
		{name: "channel without pins", mutate: func(c *Config) {
			c.Checks.Channel.Enabled = true
			c.Checks.Channel.Host = "api.example.com"
		}, want: "checks.channel.pins"},
		{name: "bad port", mutate: func(c *Config) { c.Checks.Channel.Port = 70000 }, want: "port"},
		{name: "inverted clock window", mutate: func(c *Config) { c.Checks.Clock.MinYear = 2200 }, want: "min_year"},
		{name: "bad pattern", mutate: func(c *Config) { c.Checks.Environment.Patterns = []string{"serial:contains:x"} }, want: "patterns"},
		{name: "bad console format", mutate: func(c *Config) { c.Output.ConsoleFormat = "xml" }, want: "--console-format"},
		{name: "bad filter outcome", mutate: func(c *Config) { c.Output.ConsoleFilterOutcome = []string{"PASS"} }, want: "--console-filter-outcome"},
		{name: "bad emit", mutate: func(c *Config) { c.Output.Emit = []string{"yaml"} }, want: "--emit"},
		{name: "uninferable out format", mutate: func(c *Config) { c.Output.Out = "result.txt" }, want: "--out-format"},
		{name: "bad set syntax", mutate: func(c *Config) { c.Assessment.Set = []string{"clock=2020"} }, want: "--set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_InfersOutFormat(t *testing.T) {
	for path, want := range map[string]string{"a.json": "json", "a.ndjson": "ndjson", "a.jsonl": "ndjson"} {
		cfg := New()
		cfg.Output.Out = path
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate(%s): %v", path, err)
		}
		if cfg.Output.OutFormat != want {
			t.Fatalf("%s: expected %s, got %s", path, want, cfg.Output.OutFormat)
		}
	}
}

func TestParseCheckOptionAssignments(t *testing.T) {
	got, err := ParseCheckOptionAssignments([]string{
		"instrumentation.candidates=frida;xposed, clock.min_year=2015",
		"channel.host=", // empty value allowed
		"root-access.paths=/sbin/su",
	})
	if err != nil {
		t.Fatalf("ParseCheckOptionAssignments returned error: %v", err)
	}
	if got["instrumentation"]["candidates"] != "frida;xposed" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if got["clock"]["min_year"] != "2015" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if v, ok := got["channel"]["host"]; !ok || v != "" {
		t.Fatalf("expected empty string value to be preserved: %v", got)
	}
	if got["root-access"]["paths"] != "/sbin/su" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
}

func TestParseCheckOptionAssignments_ErrorsOnInvalidSyntax(t *testing.T) {
	for _, in := range []string{"noequals", "nodot=1", ".opt=1", "check.=1"} {
		if _, err := ParseCheckOptionAssignments([]string{in}); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
