package builtin

import (
	"context"
	"fmt"
	"strconv"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const ClockID = "clock"

const (
	DefaultMinYear = 2010
	DefaultMaxYear = 2100
)

type ClockConfig struct {
	ID      string
	MinYear int
	MaxYear int
}

// ClockCheck flags a wall clock set implausibly far into the past or future,
// which is how time-limited licences and token expiry are usually defeated.
type ClockCheck struct {
	id      string
	minYear int
	maxYear int
	clock   *probe.ClockProbe
}

func NewClockCheck(cfg ClockConfig, now probe.Clock) (*ClockCheck, error) {
	if cfg.ID == "" {
		cfg.ID = ClockID
	}
	if cfg.MinYear == 0 {
		cfg.MinYear = DefaultMinYear
	}
	if cfg.MaxYear == 0 {
		cfg.MaxYear = DefaultMaxYear
	}
	if cfg.MinYear > cfg.MaxYear {
		return nil, checks.ConfigErrorf(cfg.ID, "min_year %d is after max_year %d", cfg.MinYear, cfg.MaxYear)
	}
	return &ClockCheck{id: cfg.ID, minYear: cfg.MinYear, maxYear: cfg.MaxYear, clock: probe.NewClockProbe(now)}, nil
}

func (c *ClockCheck) ID() string { return c.id }

func (c *ClockCheck) Title() string { return "Wall Clock Plausible" }

func (c *ClockCheck) Description() string {
	return "Checks that the device year lies within a plausible window."
}

func (c *ClockCheck) Options() []checks.Option {
	return []checks.Option{
		{Name: "min_year", Description: "Earliest plausible year.", Default: strconv.Itoa(DefaultMinYear)},
		{Name: "max_year", Description: "Latest plausible year.", Default: strconv.Itoa(DefaultMaxYear)},
	}
}

func (c *ClockCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	minYear, maxYear := c.minYear, c.maxYear
	if n, ok, err := optInt(c.id, opts, "min_year"); err != nil {
		return err
	} else if ok {
		minYear = n
	}
	if n, ok, err := optInt(c.id, opts, "max_year"); err != nil {
		return err
	} else if ok {
		maxYear = n
	}
	if minYear > maxYear {
		return checks.ConfigErrorf(c.id, "min_year %d is after max_year %d", minYear, maxYear)
	}
	c.minYear, c.maxYear = minYear, maxYear
	return nil
}

func (c *ClockCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	ev, err := c.clock.Observe(ctx)
	if err != nil {
		return checks.Verdict{}, err
	}
	year, _ := ev.Int(probe.KeyYear)
	evidence := ev.Strings()
	evidence["min_year"] = strconv.Itoa(c.minYear)
	evidence["max_year"] = strconv.Itoa(c.maxYear)

	if year < c.minYear || year > c.maxYear {
		return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Device year %d is outside %d-%d", year, c.minYear, c.maxYear)).WithEvidence(evidence), nil
	}
	return checks.CleanVerdict(c.id, "").WithEvidence(evidence), nil
}
