package checks

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks setup mistakes: duplicate or empty check IDs, empty
// candidate sets, unknown options. These are fatal before any assessment runs.
var ErrConfiguration = errors.New("configuration error")

type ConfigError struct {
	CheckID string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.CheckID == "" {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: check %q: %s", ErrConfiguration, e.CheckID, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func ConfigErrorf(checkID string, format string, args ...any) error {
	return &ConfigError{CheckID: checkID, Reason: fmt.Sprintf(format, args...)}
}
