package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaultguard/internal/checks"
)

func TestClockCheck_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		expected checks.Outcome
	}{
		{name: "Clean - current", year: 2026, expected: checks.OutcomeClean},
		{name: "Clean - lower bound", year: 2010, expected: checks.OutcomeClean},
		{name: "Clean - upper bound", year: 2100, expected: checks.OutcomeClean},
		{name: "Suspicious - rolled back", year: 2009, expected: checks.OutcomeSuspicious},
		{name: "Suspicious - far future", year: 2101, expected: checks.OutcomeSuspicious},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := time.Date(tt.year, 6, 1, 0, 0, 0, 0, time.UTC)
			check, err := NewClockCheck(ClockConfig{}, func() time.Time { return fixed })
			if err != nil {
				t.Fatalf("NewClockCheck: %v", err)
			}
			v, err := check.Evaluate(context.Background())
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if v.Outcome != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, v.Outcome)
			}
		})
	}
}

func TestClockCheck_InvalidWindow(t *testing.T) {
	if _, err := NewClockCheck(ClockConfig{MinYear: 2030, MaxYear: 2020}, nil); !errors.Is(err, checks.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	check, _ := NewClockCheck(ClockConfig{}, nil)
	if err := check.Configure(map[string]string{"min_year": "2200"}); !errors.Is(err, checks.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRootAccessCheck_Evaluate(t *testing.T) {
	check, err := NewRootAccessCheck(RootAccessConfig{Paths: DefaultRootArtifacts}, fakeStater{})
	if err != nil {
		t.Fatalf("NewRootAccessCheck: %v", err)
	}
	v, _ := check.Evaluate(context.Background())
	if v.Outcome != checks.OutcomeClean {
		t.Fatalf("expected CLEAN, got %s", v.Outcome)
	}

	check, _ = NewRootAccessCheck(RootAccessConfig{Paths: DefaultRootArtifacts}, fakeStater{"/data/adb/magisk": true})
	v, _ = check.Evaluate(context.Background())
	if v.Outcome != checks.OutcomeSuspicious {
		t.Fatalf("expected SUSPICIOUS, got %s", v.Outcome)
	}
	if v.EvidenceValue("present") != "/data/adb/magisk" {
		t.Fatalf("unexpected evidence %v", v.Evidence)
	}

	if _, err := NewRootAccessCheck(RootAccessConfig{}, fakeStater{}); !errors.Is(err, checks.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty paths, got %v", err)
	}
}
