package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"vaultguard/internal/checks"
	"vaultguard/internal/policy"
)

func sampleAssessment() policy.TrustAssessment {
	return policy.AnySuspicious{}.Aggregate([]checks.Verdict{
		{CheckID: "instrumentation", Outcome: checks.OutcomeClean, LatencyMs: 3},
		{CheckID: "channel", Outcome: checks.OutcomeSuspicious, Message: "Pin mismatch", LatencyMs: 41, Evidence: map[string]string{"pin": "sha256/proxy"}},
		{CheckID: "clock", Outcome: checks.OutcomeInconclusive, Message: "timed out", Evidence: map[string]string{"reason": "timeout"}},
	})
}

func TestConsoleSink_Filtering(t *testing.T) {
	tests := []struct {
		name           string
		format         string
		filterOutcomes []string
		input          checks.Verdict
		shouldWrite    bool
	}{
		{
			name:        "text - no filter - clean",
			format:      "text",
			input:       checks.Verdict{CheckID: "c", Outcome: checks.OutcomeClean},
			shouldWrite: true,
		},
		{
			name:           "text - filter SUSPICIOUS - input CLEAN",
			format:         "text",
			filterOutcomes: []string{"SUSPICIOUS"},
			input:          checks.Verdict{CheckID: "c", Outcome: checks.OutcomeClean},
			shouldWrite:    false,
		},
		{
			name:           "text - filter suspicious lowercase - input SUSPICIOUS",
			format:         "text",
			filterOutcomes: []string{"suspicious"},
			input:          checks.Verdict{CheckID: "c", Outcome: checks.OutcomeSuspicious},
			shouldWrite:    true,
		},
		{
			name:           "ndjson - filter SUSPICIOUS,INCONCLUSIVE - input INCONCLUSIVE",
			format:         "ndjson",
			filterOutcomes: []string{"SUSPICIOUS", "INCONCLUSIVE"},
			input:          checks.Verdict{CheckID: "c", Outcome: checks.OutcomeInconclusive},
			shouldWrite:    true,
		},
		{
			name:           "ndjson - filter SUSPICIOUS - input CLEAN",
			format:         "ndjson",
			filterOutcomes: []string{"SUSPICIOUS"},
			input:          checks.Verdict{CheckID: "c", Outcome: checks.OutcomeClean},
			shouldWrite:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewConsoleSink(&buf, tt.format, tt.filterOutcomes)
			sink.SetColor(false)
			if err := sink.Write(tt.input); err != nil {
				t.Fatalf("Write error: %v", err)
			}
			if err := sink.Close(); err != nil {
				t.Fatalf("Close error: %v", err)
			}
			if got := buf.Len() > 0; got != tt.shouldWrite {
				t.Fatalf("shouldWrite=%v, got output %q", tt.shouldWrite, buf.String())
			}
		})
	}
}

func TestConsoleSink_Text(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)
	sink.SetColor(false)

	a := sampleAssessment()
	_ = sink.Write(StartedEvent(a.Policy, len(a.Verdicts)))
	for _, v := range a.Verdicts {
		if err := sink.Write(v); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := sink.Write(a); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := strings.Join([]string{
		"[CLEAN] instrumentation (3ms)",
		"[SUSPICIOUS] channel (41ms) - Pin mismatch",
		"[INCONCLUSIVE] clock (0ms) - timed out",
		"Assessment: untrusted: channel (3 checks)",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("unexpected text output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestConsoleSink_TextColor(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "text", nil)
	sink.SetColor(true)
	_ = sink.Write(checks.Verdict{CheckID: "channel", Outcome: checks.OutcomeSuspicious})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected ANSI escape in coloured output, got %q", buf.String())
	}
}

func TestConsoleSink_JSONWritesAssessmentOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, "json", []string{"SUSPICIOUS"})
	a := sampleAssessment()
	for _, v := range a.Verdicts {
		_ = sink.Write(v)
	}
	_ = sink.Write(a)
	if buf.Len() != 0 {
		t.Fatalf("json mode wrote before Close: %q", buf.String())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got policy.TrustAssessment
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.Trusted || got.Reason != "channel" || len(got.Verdicts) != 3 {
		t.Fatalf("unexpected assessment %+v", got)
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	sink := NewConsoleSink(&bytes.Buffer{}, "xml", nil)
	if err := sink.Write(checks.Verdict{}); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	if err := sink.Close(); err == nil {
		t.Fatalf("expected close error for unsupported format")
	}
}
