package probe

import (
	"context"
	"errors"
)

const (
	KeyTraced     = "traced"
	KeyTracerPID  = "tracer_pid"
	KeyTracerName = "tracer_name"
)

// TracerProbe reads which process, if any, is tracing the current one.
type TracerProbe struct {
	reader TracerReader
}

func NewTracerProbe(reader TracerReader) (*TracerProbe, error) {
	if reader == nil {
		return nil, errors.New("tracer probe: reader is nil")
	}
	return &TracerProbe{reader: reader}, nil
}

func (p *TracerProbe) Name() string { return "tracer" }

func (p *TracerProbe) Observe(ctx context.Context) (Evidence, error) {
	if err := ctx.Err(); err != nil {
		return Evidence{}, Unavailable(p.Name(), err)
	}
	info, err := p.reader.Tracer(ctx)
	if err != nil {
		return Evidence{}, Unavailable(p.Name(), err)
	}
	ev := NewEvidence()
	ev.Set(KeyTraced, info.PID != 0)
	ev.Set(KeyTracerPID, info.PID)
	ev.Set(KeyTracerName, info.Name)
	return ev, nil
}
