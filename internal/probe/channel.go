package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KeyHost               = "host"
	KeyHandshakeCompleted = "handshake_completed"
	KeyPin                = "pin"
	KeyPinMatched         = "pin_matched"
	KeyChainLength        = "chain_length"
	KeyError              = "error"
)

// PinnedChannelProbe completes a TLS handshake with a host and reports whether
// the pin of the certificate at the configured chain depth is expected.
//
// A handshake that does not finish within the timeout, or whose context is
// cancelled, is ProbeUnavailable: a network failure is not evidence of
// tampering.
type PinnedChannelProbe struct {
	host       string
	pins       map[string]struct{}
	timeout    time.Duration
	depth      int
	handshaker Handshaker
}

type ChannelOptions struct {
	Host    string
	Pins    []string
	Timeout time.Duration
	// Depth selects the certificate whose pin is compared; 0 is the leaf.
	Depth int
}

func NewPinnedChannelProbe(opts ChannelOptions, h Handshaker) (*PinnedChannelProbe, error) {
	if h == nil {
		return nil, errors.New("pinned channel probe: handshaker is nil")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("pinned channel probe: timeout must be > 0, got %s", opts.Timeout)
	}
	if opts.Depth < 0 {
		return nil, fmt.Errorf("pinned channel probe: depth must be >= 0, got %d", opts.Depth)
	}
	pins := make(map[string]struct{}, len(opts.Pins))
	for _, p := range opts.Pins {
		if p = strings.TrimSpace(p); p != "" {
			pins[p] = struct{}{}
		}
	}
	return &PinnedChannelProbe{
		host:       strings.TrimSpace(opts.Host),
		pins:       pins,
		timeout:    opts.Timeout,
		depth:      opts.Depth,
		handshaker: h,
	}, nil
}

func (p *PinnedChannelProbe) Name() string { return "pinned-channel" }

func (p *PinnedChannelProbe) Host() string { return p.host }

func (p *PinnedChannelProbe) Observe(ctx context.Context) (Evidence, error) {
	hctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type outcome struct {
		state HandshakeState
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := p.handshaker.Handshake(hctx, p.host)
		done <- outcome{state: st, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-hctx.Done():
		return Evidence{}, Unavailable(p.Name(), hctx.Err())
	}

	ev := NewEvidence()
	ev.Set(KeyHost, p.host)
	if res.err != nil {
		if hctx.Err() != nil {
			return Evidence{}, Unavailable(p.Name(), hctx.Err())
		}
		ev.Complete = false
		ev.Set(KeyHandshakeCompleted, false)
		ev.Set(KeyError, res.err.Error())
		return ev, nil
	}

	pin := ""
	if p.depth < len(res.state.ChainPins) {
		pin = res.state.ChainPins[p.depth]
	}
	_, matched := p.pins[pin]
	ev.Set(KeyHandshakeCompleted, true)
	ev.Set(KeyChainLength, len(res.state.ChainPins))
	ev.Set(KeyPin, pin)
	ev.Set(KeyPinMatched, pin != "" && matched)
	return ev, nil
}
