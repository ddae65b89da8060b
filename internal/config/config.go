package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vaultguard/internal/checks"
	"vaultguard/internal/checks/builtin"
	"vaultguard/internal/policy"
	"vaultguard/internal/probe"
)

// DefaultPath is read when --config is not given. A missing file means
// defaults.
const DefaultPath = "vaultguard.yaml"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect
	// assessment behavior, keep these in sync:
	// - CLI flags in internal/cli/assess.go
	// - check construction in internal/cli/build.go
	Assessment Assessment `yaml:"assessment"`
	Checks     Checks     `yaml:"checks"`
	Output     Output     `yaml:"output"`
	Runtime    Runtime    `yaml:"runtime"`
}

type Assessment struct {
	// Policy selects the aggregation policy (see --policy).
	// Allowed values: any-suspicious, strict, weighted.
	Policy string `yaml:"policy"`

	// Timeout is the overall assessment deadline (see --timeout). Must be > 0.
	Timeout time.Duration `yaml:"timeout"`

	// Concurrency bounds how many checks run at once (see --concurrency).
	// 0 means one worker per check.
	Concurrency int `yaml:"concurrency"`

	// CheckTimeouts bounds individual checks by ID.
	CheckTimeouts map[string]time.Duration `yaml:"check_timeouts"`

	// Weighted policy parameters.
	Weights            map[string]float64 `yaml:"weights"`
	Threshold          float64            `yaml:"threshold"`
	InconclusiveFactor float64            `yaml:"inconclusive_factor"`

	// Selector limits the run to a comma-separated list of check IDs
	// (see --checks). Empty means every enabled check.
	Selector string `yaml:"checks"`

	// Set provides per-check option overrides from the CLI.
	// Entries are of the form checkID.option=value (repeatable; see --set).
	Set []string `yaml:"set"`
}

type Checks struct {
	Instrumentation Instrumentation `yaml:"instrumentation"`
	Environment     Environment     `yaml:"environment"`
	Channel         Channel         `yaml:"channel"`
	Clock           Clock           `yaml:"clock"`
	RootAccess      RootAccess      `yaml:"root_access"`
	Debugger        Debugger        `yaml:"debugger"`
}

type Instrumentation struct {
	Enabled    bool     `yaml:"enabled"`
	Candidates []string `yaml:"candidates"`
	// ImageMarkers are matched against the mapped images of the process.
	// Empty disables the image scan.
	ImageMarkers []string `yaml:"image_markers"`
	// LibraryDirs replaces the default library search path.
	LibraryDirs []string `yaml:"library_dirs"`
	Exhaustive  bool     `yaml:"exhaustive"`
}

type Environment struct {
	Enabled    bool     `yaml:"enabled"`
	Patterns   []string `yaml:"patterns"`
	IgnoreCase bool     `yaml:"ignore_case"`
	// Properties overrides the identity read from the host. When every
	// field is set the host is not consulted.
	Properties probe.DeviceProperties `yaml:"properties"`
}

type Channel struct {
	Enabled bool          `yaml:"enabled"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Pins    []string      `yaml:"pins"`
	Timeout time.Duration `yaml:"timeout"`
	// Depth selects the certificate compared against the pins (0 = leaf).
	Depth int `yaml:"depth"`
}

type Clock struct {
	Enabled bool `yaml:"enabled"`
	MinYear int  `yaml:"min_year"`
	MaxYear int  `yaml:"max_year"`
}

type RootAccess struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

type Debugger struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedTracers []string `yaml:"allowed_tracers"`
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `yaml:"console_format"`

	// ConsoleFilterOutcome filters console verdict lines by outcome (see --console-filter-outcome).
	// Allowed values: CLEAN, SUSPICIOUS, INCONCLUSIVE.
	ConsoleFilterOutcome []string `yaml:"console_filter_outcome"`

	// Report writes a Markdown report to this path (see --report).
	Report string `yaml:"report"`

	// Out writes structured output to this path (see --out).
	Out string `yaml:"out"`

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string `yaml:"out_format"`

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string `yaml:"emit"`

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool `yaml:"no_console"`
}

type Runtime struct {
	// Verbose writes per-check and per-handshake diagnostics to stderr.
	Verbose bool `yaml:"verbose"`
}

func New() *Config {
	patterns := make([]string, len(builtin.DefaultEnvironmentPatterns))
	for i, p := range builtin.DefaultEnvironmentPatterns {
		patterns[i] = p.String()
	}
	return &Config{
		Assessment: Assessment{
			Policy:  policy.NameAnySuspicious,
			Timeout: 5 * time.Second,
		},
		Checks: Checks{
			Instrumentation: Instrumentation{
				Enabled:      true,
				Candidates:   append([]string(nil), builtin.DefaultInstrumentationCandidates...),
				ImageMarkers: append([]string(nil), builtin.DefaultImageMarkers...),
			},
			Environment: Environment{
				Enabled:  true,
				Patterns: patterns,
			},
			Channel: Channel{
				Port:    443,
				Timeout: builtin.DefaultChannelTimeout,
			},
			Clock: Clock{
				Enabled: true,
				MinYear: builtin.DefaultMinYear,
				MaxYear: builtin.DefaultMaxYear,
			},
			RootAccess: RootAccess{
				Paths: append([]string(nil), builtin.DefaultRootArtifacts...),
			},
			Debugger: Debugger{
				Enabled: true,
			},
		},
		Output: Output{
			ConsoleFormat: "text",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.Assessment.Set = splitCommaList(c.Assessment.Set)
	c.Output.Emit = splitCommaList(c.Output.Emit)
	c.Output.ConsoleFilterOutcome = splitCommaList(c.Output.ConsoleFilterOutcome)
	c.Checks.Instrumentation.Candidates = splitCommaList(c.Checks.Instrumentation.Candidates)
	c.Checks.Instrumentation.ImageMarkers = splitCommaList(c.Checks.Instrumentation.ImageMarkers)
	c.Checks.Channel.Pins = splitCommaList(c.Checks.Channel.Pins)
	c.Checks.Debugger.AllowedTracers = splitCommaList(c.Checks.Debugger.AllowedTracers)

	// Assessment validation
	c.Assessment.Policy = normalizeEnumValue(c.Assessment.Policy)
	if c.Assessment.Policy == "" {
		c.Assessment.Policy = policy.NameAnySuspicious
	}
	if !contains(policy.Names(), c.Assessment.Policy) {
		return fmt.Errorf("unsupported --policy: %s (must be one of: %s)", c.Assessment.Policy, strings.Join(policy.Names(), ", "))
	}
	if c.Assessment.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	if c.Assessment.Concurrency < 0 {
		return errors.New("--concurrency must be >= 0")
	}
	for id, d := range c.Assessment.CheckTimeouts {
		if d <= 0 {
			return fmt.Errorf("check_timeouts.%s must be > 0", id)
		}
	}
	if c.Assessment.Threshold < 0 {
		return errors.New("assessment.threshold must be >= 0")
	}
	if c.Assessment.InconclusiveFactor < 0 || c.Assessment.InconclusiveFactor > 1 {
		return errors.New("assessment.inconclusive_factor must be within [0, 1]")
	}

	// Check validation
	if ch := &c.Checks.Channel; ch.Enabled {
		if strings.TrimSpace(ch.Host) == "" {
			return errors.New("checks.channel.host is required when the channel check is enabled")
		}
		if len(ch.Pins) == 0 {
			return errors.New("checks.channel.pins is required when the channel check is enabled")
		}
	}
	if p := c.Checks.Channel.Port; p <= 0 || p > 65535 {
		return fmt.Errorf("checks.channel.port must be within [1, 65535], got %d", p)
	}
	if c.Checks.Channel.Timeout < 0 {
		return errors.New("checks.channel.timeout must be >= 0")
	}
	if c.Checks.Clock.MinYear > c.Checks.Clock.MaxYear {
		return errors.New("checks.clock.min_year must not exceed max_year")
	}
	if _, err := builtin.ParsePatterns(c.Checks.Environment.Patterns); err != nil {
		return fmt.Errorf("checks.environment.patterns: %w", err)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, o := range c.Output.ConsoleFilterOutcome {
		v := checks.Outcome(strings.ToUpper(strings.TrimSpace(o)))
		if !v.Valid() {
			return fmt.Errorf("unsupported --console-filter-outcome value: %s (must be one of: CLEAN, SUSPICIOUS, INCONCLUSIVE)", o)
		}
		c.Output.ConsoleFilterOutcome[i] = string(v)
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Check option syntax validation (check.option=value)
	if len(c.Assessment.Set) > 0 {
		if _, err := ParseCheckOptionAssignments(c.Assessment.Set); err != nil {
			return err
		}
	}

	return nil
}

// WeightedPolicy returns the weighted policy parameters.
func (c *Config) WeightedPolicy() policy.WeightedConfig {
	return policy.WeightedConfig{
		Weights:            c.Assessment.Weights,
		Threshold:          c.Assessment.Threshold,
		InconclusiveFactor: c.Assessment.InconclusiveFactor,
	}
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ParseCheckOptionAssignments parses values of the form "checkID.option=value".
//
// Notes:
//   - Entries are split on commas before parsing, so list-valued options use
//     ';' between items (instrumentation.candidates=frida;xposed).
//   - This validates syntax only (no validation of check IDs or option names).
//   - Empty values are allowed ("check.option=").
//   - Check IDs may contain dashes but not dots; the first dot separates the
//     option name.
func ParseCheckOptionAssignments(values []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, raw := range splitCommaList(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected check.option=value", raw)
		}
		value = strings.TrimSpace(value)
		checkID, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected check.option=value", raw)
		}
		checkID = strings.TrimSpace(checkID)
		opt = strings.TrimSpace(opt)
		if checkID == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty check and option", raw)
		}
		if _, ok := out[checkID]; !ok {
			out[checkID] = make(map[string]string)
		}
		out[checkID][opt] = value
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
