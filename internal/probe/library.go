package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	KeyLoaded    = "loaded"
	KeyAttempted = "attempted"
	KeyFailed    = "failed"
	libKeyPrefix = "lib."
)

// LibraryKey is the evidence key recording whether name loaded.
func LibraryKey(name string) string {
	return libKeyPrefix + name
}

// LibraryErrorKey is the evidence key holding the loader error for name.
func LibraryErrorKey(name string) string {
	return libKeyPrefix + name + ".error"
}

// LibraryPresenceProbe attempts to load each candidate library.
//
// With Exhaustive unset it stops at the first successful load; otherwise every
// candidate is attempted so the evidence is a complete picture. A candidate
// the loader fails on is recorded under LibraryErrorKey and the scan goes on.
// Observe is unavailable only when nothing loaded and every attempt failed.
type LibraryPresenceProbe struct {
	names      []string
	loader     LibraryLoader
	exhaustive bool
}

func NewLibraryPresenceProbe(names []string, loader LibraryLoader, exhaustive bool) (*LibraryPresenceProbe, error) {
	if loader == nil {
		return nil, errors.New("library presence probe: loader is nil")
	}
	cp := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cp = append(cp, n)
		}
	}
	return &LibraryPresenceProbe{names: cp, loader: loader, exhaustive: exhaustive}, nil
}

func (p *LibraryPresenceProbe) Name() string { return "library-presence" }

func (p *LibraryPresenceProbe) Names() []string {
	return append([]string(nil), p.names...)
}

func (p *LibraryPresenceProbe) Observe(ctx context.Context) (Evidence, error) {
	ev := NewEvidence()
	var (
		loaded []string
		failed []string
		errs   []error
	)
	attempted := 0
	for _, name := range p.names {
		if err := ctx.Err(); err != nil {
			if len(loaded) > 0 {
				ev.Complete = false
				break
			}
			return Evidence{}, Unavailable(p.Name(), err)
		}
		ok, err := p.loader.TryLoad(name)
		attempted++
		if err != nil {
			ev.Set(LibraryErrorKey(name), err.Error())
			failed = append(failed, name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		ev.Set(LibraryKey(name), ok)
		if ok {
			loaded = append(loaded, name)
			if !p.exhaustive {
				break
			}
		}
	}
	if len(loaded) == 0 && attempted > 0 && len(failed) == attempted {
		return Evidence{}, Unavailable(p.Name(), errors.Join(errs...))
	}
	if len(failed) > 0 {
		ev.Complete = false
	}
	ev.Set(KeyLoaded, strings.Join(loaded, ","))
	ev.Set(KeyAttempted, attempted)
	ev.Set(KeyFailed, strings.Join(failed, ","))
	return ev, nil
}
