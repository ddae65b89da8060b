package probe

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a probe whose platform primitive could not execute.
// It is distinct from a negative finding.
var ErrUnavailable = errors.New("probe unavailable")

type UnavailableError struct {
	Probe string
	Err   error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Probe, ErrUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Probe, ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func Unavailable(probe string, err error) error {
	return &UnavailableError{Probe: probe, Err: err}
}

// IsUnavailable reports whether err signals ProbeUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
