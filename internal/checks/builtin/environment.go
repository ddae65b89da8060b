package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const EnvironmentID = "environment"

const (
	MatchContains = "contains"
	MatchPrefix   = "prefix"
	// MatchContainsFold is contains with case folding regardless of
	// ignore_case.
	MatchContainsFold = "icontains"
	anyField          = "*"
)

// Pattern matches one device identity field, or all of them when Field is
// empty.
type Pattern struct {
	Field string
	Kind  string
	Value string
}

// ParsePattern reads "field:kind:value". Field may be "*" for every field;
// kind is "contains", "icontains" or "prefix". Value may itself contain ':'.
func ParsePattern(s string) (Pattern, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 {
		return Pattern{}, fmt.Errorf("invalid pattern %q: expected field:kind:value", s)
	}
	field := strings.ToLower(strings.TrimSpace(parts[0]))
	kind := strings.ToLower(strings.TrimSpace(parts[1]))
	value := parts[2]

	if field == anyField {
		field = ""
	} else if !isDeviceField(field) {
		return Pattern{}, fmt.Errorf("invalid pattern %q: unknown field %q (want one of %s or *)", s, field, strings.Join(probe.DeviceFields, ", "))
	}
	switch kind {
	case MatchContains, MatchContainsFold, MatchPrefix:
	default:
		return Pattern{}, fmt.Errorf("invalid pattern %q: unknown match kind %q (want contains, icontains or prefix)", s, kind)
	}
	if value == "" {
		return Pattern{}, fmt.Errorf("invalid pattern %q: empty value", s)
	}
	return Pattern{Field: field, Kind: kind, Value: value}, nil
}

func ParsePatterns(values []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := ParsePattern(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (p Pattern) String() string {
	f := p.Field
	if f == "" {
		f = anyField
	}
	return f + ":" + p.Kind + ":" + p.Value
}

func (p Pattern) match(field, value string, ignoreCase bool) bool {
	if p.Field != "" && p.Field != field {
		return false
	}
	needle := p.Value
	if ignoreCase || p.Kind == MatchContainsFold {
		value = strings.ToLower(value)
		needle = strings.ToLower(needle)
	}
	if p.Kind == MatchPrefix {
		return strings.HasPrefix(value, needle)
	}
	return strings.Contains(value, needle)
}

func isDeviceField(f string) bool {
	for _, d := range probe.DeviceFields {
		if d == f {
			return true
		}
	}
	return false
}

// DefaultEnvironmentPatterns are the stock emulator markers.
var DefaultEnvironmentPatterns = []Pattern{
	{Field: probe.FieldFingerprint, Kind: MatchContains, Value: "generic"},
	{Field: probe.FieldModel, Kind: MatchContains, Value: "Emulator"},
	{Field: probe.FieldManufacturer, Kind: MatchContains, Value: "Genymotion"},
	{Field: probe.FieldBrand, Kind: MatchPrefix, Value: "generic"},
	{Field: probe.FieldDevice, Kind: MatchPrefix, Value: "generic"},
	{Field: probe.FieldModel, Kind: MatchContainsFold, Value: "simulator"},
}

type EnvironmentConfig struct {
	ID         string
	Patterns   []Pattern
	IgnoreCase bool
}

// EnvironmentCheck flags emulated or virtualised hosts by matching device
// identity strings against known markers.
//
// This is advisory only. The marker list is public knowledge and a modified
// image can report any identity it likes.
type EnvironmentCheck struct {
	id         string
	patterns   []Pattern
	ignoreCase bool

	fingerprint *probe.DeviceFingerprintProbe
}

func NewEnvironmentCheck(cfg EnvironmentConfig, reader probe.PropertyReader) (*EnvironmentCheck, error) {
	id := cfg.ID
	if id == "" {
		id = EnvironmentID
	}
	fp, err := probe.NewDeviceFingerprintProbe(reader)
	if err != nil {
		return nil, checks.ConfigErrorf(id, "%v", err)
	}
	if len(cfg.Patterns) == 0 {
		return nil, checks.ConfigErrorf(id, "pattern set must not be empty")
	}
	return &EnvironmentCheck{
		id:          id,
		patterns:    append([]Pattern(nil), cfg.Patterns...),
		ignoreCase:  cfg.IgnoreCase,
		fingerprint: fp,
	}, nil
}

func (c *EnvironmentCheck) ID() string { return c.id }

func (c *EnvironmentCheck) Title() string { return "Genuine Device Environment" }

func (c *EnvironmentCheck) Description() string {
	return "Matches device identity strings (fingerprint, model, manufacturer, brand, device) against emulator and virtualisation markers. Advisory signal, not a trust boundary."
}

func (c *EnvironmentCheck) Options() []checks.Option {
	defaults := make([]string, 0, len(DefaultEnvironmentPatterns))
	for _, p := range DefaultEnvironmentPatterns {
		defaults = append(defaults, p.String())
	}
	return []checks.Option{
		{Name: "patterns", Description: "Patterns as field:kind:value, field may be * (';'-separated).", Default: joinList(defaults)},
		{Name: "ignore_case", Description: "Match patterns case-insensitively.", Default: "false"},
	}
}

func (c *EnvironmentCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	patterns := c.patterns
	if v, ok := optList(opts, "patterns"); ok {
		parsed, err := ParsePatterns(v)
		if err != nil {
			return checks.ConfigErrorf(c.id, "%v", err)
		}
		if len(parsed) == 0 {
			return checks.ConfigErrorf(c.id, "pattern set must not be empty")
		}
		patterns = parsed
	}
	ignoreCase := c.ignoreCase
	b, ok, err := optBool(c.id, opts, "ignore_case")
	if err != nil {
		return err
	}
	if ok {
		ignoreCase = b
	}
	c.patterns = patterns
	c.ignoreCase = ignoreCase
	return nil
}

func (c *EnvironmentCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	ev, err := c.fingerprint.Observe(ctx)
	if err != nil {
		return checks.Verdict{}, err
	}

	evidence := make(map[string]string, len(probe.DeviceFields)+2)
	for _, f := range probe.DeviceFields {
		v, _ := ev.String(f)
		evidence[f] = v
	}
	evidence["patterns"] = strconv.Itoa(len(c.patterns))

	for _, f := range probe.DeviceFields {
		for _, p := range c.patterns {
			if p.match(f, evidence[f], c.ignoreCase) {
				evidence["matched"] = p.String()
				evidence["matched_field"] = f
				msg := fmt.Sprintf("Device %s %q matches %s", f, evidence[f], p.String())
				return checks.SuspiciousVerdict(c.id, msg).WithEvidence(evidence), nil
			}
		}
	}
	return checks.CleanVerdict(c.id, "").WithEvidence(evidence), nil
}
