package builtin

import (
	"context"
	"errors"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

var (
	_ checks.ConfigurableCheck = (*InstrumentationCheck)(nil)
	_ checks.ConfigurableCheck = (*EnvironmentCheck)(nil)
	_ checks.ConfigurableCheck = (*ChannelCheck)(nil)
	_ checks.ConfigurableCheck = (*ClockCheck)(nil)
	_ checks.ConfigurableCheck = (*RootAccessCheck)(nil)
	_ checks.ConfigurableCheck = (*DebuggerCheck)(nil)
)

type fakeLoader map[string]bool

func (l fakeLoader) TryLoad(name string) (bool, error) { return l[name], nil }

type brokenLoader struct{}

func (brokenLoader) TryLoad(name string) (bool, error) { return false, errors.New("permission denied") }

// partialLoader fails on the names in errs and otherwise behaves like loadable.
type partialLoader struct {
	loadable fakeLoader
	errs     map[string]error
}

func (l partialLoader) TryLoad(name string) (bool, error) {
	if err := l.errs[name]; err != nil {
		return false, err
	}
	return l.loadable[name], nil
}

type brokenLister struct{}

func (brokenLister) LoadedImages(ctx context.Context) ([]string, error) {
	return nil, errors.New("maps unreadable")
}

type fakeLister []string

func (l fakeLister) LoadedImages(ctx context.Context) ([]string, error) { return l, nil }

type fakeReader probe.DeviceProperties

func (r fakeReader) ReadProperties(ctx context.Context) (probe.DeviceProperties, error) {
	return probe.DeviceProperties(r), nil
}

type fakeHandshaker struct {
	pins  []string
	err   error
	block bool
}

func (h fakeHandshaker) Handshake(ctx context.Context, hostname string) (probe.HandshakeState, error) {
	if h.block {
		<-ctx.Done()
		return probe.HandshakeState{}, ctx.Err()
	}
	if h.err != nil {
		return probe.HandshakeState{}, h.err
	}
	return probe.HandshakeState{ChainPins: h.pins}, nil
}

type fakeStater map[string]bool

func (s fakeStater) Exists(path string) (bool, error) { return s[path], nil }

type fakeTracer struct {
	info probe.TracerInfo
	err  error
}

func (t fakeTracer) Tracer(ctx context.Context) (probe.TracerInfo, error) { return t.info, t.err }
