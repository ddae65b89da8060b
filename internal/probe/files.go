package probe

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	KeyPresentPaths = "present"
	KeyCheckedPaths = "checked"
	KeyNow          = "now"
	KeyYear         = "year"
)

// FilePresenceProbe reports which of a fixed set of paths exist.
type FilePresenceProbe struct {
	paths  []string
	stater FileStater
}

func NewFilePresenceProbe(paths []string, stater FileStater) (*FilePresenceProbe, error) {
	if stater == nil {
		return nil, errors.New("file presence probe: stater is nil")
	}
	cp := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			cp = append(cp, p)
		}
	}
	return &FilePresenceProbe{paths: cp, stater: stater}, nil
}

func (p *FilePresenceProbe) Name() string { return "file-presence" }

func (p *FilePresenceProbe) Observe(ctx context.Context) (Evidence, error) {
	ev := NewEvidence()
	var present []string
	for _, path := range p.paths {
		if err := ctx.Err(); err != nil {
			return Evidence{}, Unavailable(p.Name(), err)
		}
		ok, err := p.stater.Exists(path)
		if err != nil {
			return Evidence{}, Unavailable(p.Name(), err)
		}
		if ok {
			present = append(present, path)
		}
	}
	ev.Set(KeyCheckedPaths, len(p.paths))
	ev.Set(KeyPresentPaths, strings.Join(present, ","))
	return ev, nil
}

// ClockProbe reads the wall clock.
type ClockProbe struct {
	now Clock
}

func NewClockProbe(now Clock) *ClockProbe {
	if now == nil {
		now = time.Now
	}
	return &ClockProbe{now: now}
}

func (p *ClockProbe) Name() string { return "clock" }

func (p *ClockProbe) Observe(ctx context.Context) (Evidence, error) {
	t := p.now()
	ev := NewEvidence()
	ev.Set(KeyNow, t.UTC().Format(time.RFC3339))
	ev.Set(KeyYear, t.Year())
	return ev, nil
}
