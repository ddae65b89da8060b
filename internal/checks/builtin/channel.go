package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const ChannelID = "channel"

const DefaultChannelTimeout = 2 * time.Second

type ChannelConfig struct {
	ID      string
	Host    string
	Pins    []string
	Timeout time.Duration
	Depth   int
}

// ChannelCheck verifies that the TLS channel to a known host presents the
// expected public-key pin.
//
// A handshake that does not complete is Inconclusive, never Suspicious:
// ordinary connectivity loss is indistinguishable from an attack at this
// layer and must not be reported as tampering.
type ChannelCheck struct {
	id  string
	cfg ChannelConfig

	handshaker probe.Handshaker
	channel    *probe.PinnedChannelProbe
}

func NewChannelCheck(cfg ChannelConfig, h probe.Handshaker) (*ChannelCheck, error) {
	if cfg.ID == "" {
		cfg.ID = ChannelID
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultChannelTimeout
	}
	cfg.Pins = cleanList(cfg.Pins)
	c := &ChannelCheck{id: cfg.ID, cfg: cfg, handshaker: h}
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ChannelCheck) rebuild() error {
	if strings.TrimSpace(c.cfg.Host) == "" {
		return checks.ConfigErrorf(c.id, "pinned hostname must not be empty")
	}
	if len(c.cfg.Pins) == 0 {
		return checks.ConfigErrorf(c.id, "pin set must not be empty")
	}
	for _, p := range c.cfg.Pins {
		if !strings.HasPrefix(p, "sha256/") {
			return checks.ConfigErrorf(c.id, "pin %q must use the sha256/<base64> form", p)
		}
	}
	if c.handshaker == nil {
		return checks.ConfigErrorf(c.id, "handshaker is required")
	}
	ch, err := probe.NewPinnedChannelProbe(probe.ChannelOptions{
		Host:    c.cfg.Host,
		Pins:    c.cfg.Pins,
		Timeout: c.cfg.Timeout,
		Depth:   c.cfg.Depth,
	}, c.handshaker)
	if err != nil {
		return checks.ConfigErrorf(c.id, "%v", err)
	}
	c.channel = ch
	return nil
}

func (c *ChannelCheck) ID() string { return c.id }

func (c *ChannelCheck) Title() string { return "Pinned Channel Authentic" }

func (c *ChannelCheck) Description() string {
	return "Completes a TLS handshake with the pinned host and compares the certificate public-key pin against the expected set. Network failures are inconclusive, not suspicious."
}

func (c *ChannelCheck) Options() []checks.Option {
	return []checks.Option{
		{Name: "host", Description: "Pinned hostname, optionally host:port.", Default: ""},
		{Name: "pins", Description: "Expected pins as sha256/<base64> (';'-separated).", Default: ""},
		{Name: "timeout", Description: "Handshake timeout.", Default: formatDuration(DefaultChannelTimeout)},
		{Name: "depth", Description: "Chain index of the pinned certificate; 0 is the leaf.", Default: "0"},
	}
}

func (c *ChannelCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	next := *c
	if v, ok := opts["host"]; ok {
		next.cfg.Host = strings.TrimSpace(v)
	}
	if v, ok := optList(opts, "pins"); ok {
		next.cfg.Pins = v
	}
	d, ok, err := optDuration(c.id, opts, "timeout")
	if err != nil {
		return err
	}
	if ok {
		next.cfg.Timeout = d
	}
	n, ok, err := optInt(c.id, opts, "depth")
	if err != nil {
		return err
	}
	if ok {
		next.cfg.Depth = n
	}
	if err := next.rebuild(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *ChannelCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	ev, err := c.channel.Observe(ctx)
	if err != nil {
		if probe.IsUnavailable(err) {
			reason := unavailableReason(err)
			return checks.InconclusiveVerdict(c.id, fmt.Sprintf("Pinned handshake did not complete (%s)", reason)).WithEvidence(map[string]string{
				"host":                c.cfg.Host,
				"handshake_completed": "false",
				"reason":              reason,
			}), nil
		}
		return checks.Verdict{}, err
	}

	evidence := ev.Strings()
	completed, _ := ev.Bool(probe.KeyHandshakeCompleted)
	if !completed {
		msg, _ := ev.String(probe.KeyError)
		evidence["reason"] = "handshake_failed"
		return checks.InconclusiveVerdict(c.id, fmt.Sprintf("Pinned handshake failed: %s", msg)).WithEvidence(evidence), nil
	}

	matched, _ := ev.Bool(probe.KeyPinMatched)
	if !matched {
		pin, _ := ev.String(probe.KeyPin)
		return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Certificate pin %s is not in the expected set", pin)).WithEvidence(evidence), nil
	}
	return checks.CleanVerdict(c.id, "").WithEvidence(evidence), nil
}

func unavailableReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "probe_unavailable"
	}
}
