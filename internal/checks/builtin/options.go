package builtin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vaultguard/internal/checks"
)

// option lookups shared by the configurable checks. Unknown option names are
// rejected by checkOptionNames before any value is applied.

func checkOptionNames(id string, allowed []checks.Option, opts map[string]string) error {
	names := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		names[o.Name] = struct{}{}
	}
	for name := range opts {
		if _, ok := names[name]; !ok {
			return checks.ConfigErrorf(id, "unknown option %q", name)
		}
	}
	return nil
}

func optList(opts map[string]string, name string) ([]string, bool) {
	v, ok := opts[name]
	if !ok {
		return nil, false
	}
	return splitList(v), true
}

func optBool(id string, opts map[string]string, name string) (bool, bool, error) {
	v, ok := opts[name]
	if !ok || strings.TrimSpace(v) == "" {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false, checks.ConfigErrorf(id, "invalid value for %s: %s", name, v)
	}
	return b, true, nil
}

func optInt(id string, opts map[string]string, name string) (int, bool, error) {
	v, ok := opts[name]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false, checks.ConfigErrorf(id, "invalid value for %s: %s", name, v)
	}
	return n, true, nil
}

func optDuration(id string, opts map[string]string, name string) (time.Duration, bool, error) {
	v, ok := opts[name]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, false, checks.ConfigErrorf(id, "invalid value for %s: %s", name, v)
	}
	return d, true, nil
}

// splitList splits on both ';' and ',' so list options survive the
// comma-separated --set flag as "a;b;c".
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func joinList(v []string) string {
	return strings.Join(v, ";")
}

func formatDuration(d time.Duration) string {
	return fmt.Sprint(d)
}
