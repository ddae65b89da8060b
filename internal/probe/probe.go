package probe

import (
	"context"
	"sort"
	"strconv"
)

// Probe performs one raw, uninterpreted platform observation.
//
// Absence of the thing being looked for is a normal Evidence value, not an
// error. Observe returns an error wrapping ErrUnavailable only when the
// underlying platform primitive could not run at all.
type Probe interface {
	Name() string
	Observe(ctx context.Context) (Evidence, error)
}

// Evidence is the raw output of a probe.
//
// Values holds string, bool and numeric entries. Complete reports whether the
// observation ran to completion; a probe that stopped early (for example at
// the first loaded library) still reports Complete=true.
type Evidence struct {
	Complete bool
	Values   map[string]any
}

func NewEvidence() Evidence {
	return Evidence{Complete: true, Values: make(map[string]any)}
}

func (e Evidence) Set(key string, v any) {
	e.Values[key] = v
}

func (e Evidence) String(key string) (string, bool) {
	v, ok := e.Values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (e Evidence) Bool(key string) (bool, bool) {
	v, ok := e.Values[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (e Evidence) Int(key string) (int, bool) {
	v, ok := e.Values[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	default:
		return 0, false
	}
}

// Strings flattens Values into a string map suitable for Verdict evidence.
func (e Evidence) Strings() map[string]string {
	out := make(map[string]string, len(e.Values))
	for k, v := range e.Values {
		out[k] = formatValue(v)
	}
	return out
}

// Keys returns the evidence keys in sorted order.
func (e Evidence) Keys() []string {
	keys := make([]string, 0, len(e.Values))
	for k := range e.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return "<unsupported>"
	}
}
