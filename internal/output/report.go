package output

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"vaultguard/internal/checks"
	"vaultguard/internal/policy"
)

// ReportSink renders a Markdown report of the assessment on Close.
type ReportSink struct {
	file       *atomicFile
	mu         sync.Mutex
	assessment *policy.TrustAssessment
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := createAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{file: f}, nil
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := v.(policy.TrustAssessment); ok {
		s.assessment = &a
	}
	return nil
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.assessment != nil {
		_, err = s.file.buf.WriteString(renderReport(*s.assessment))
	}
	if commitErr := s.file.commit(err != nil); err == nil {
		err = commitErr
	}
	return err
}

func renderReport(a policy.TrustAssessment) string {
	var b strings.Builder
	b.WriteString("# Vaultguard Trust Report\n\n")

	status := "✅ Trusted"
	if !a.Trusted {
		status = "🚨 Untrusted"
	}
	fmt.Fprintf(&b, "**Result:** %s\n\n", status)
	fmt.Fprintf(&b, "- Policy: `%s`\n", a.Policy)
	fmt.Fprintf(&b, "- Checks: %d\n", len(a.Verdicts))
	if a.Reason != "" {
		fmt.Fprintf(&b, "- Deciding check: `%s`\n", a.Reason)
	}
	if a.Policy == policy.NameWeighted {
		fmt.Fprintf(&b, "- Score: %g\n", a.Score)
	}
	if len(a.Inconclusive) > 0 {
		fmt.Fprintf(&b, "- Inconclusive: %s\n", strings.Join(a.Inconclusive, ", "))
	}
	fmt.Fprintf(&b, "- Exit code: %d\n", policy.ExitCode(a))

	b.WriteString("\n## Verdicts\n\n")
	b.WriteString("| Check | Outcome | Latency | Message |\n")
	b.WriteString("|-------|---------|---------|---------|\n")
	for _, v := range a.Verdicts {
		fmt.Fprintf(&b, "| `%s` | %s | %dms | %s |\n", v.CheckID, v.Outcome, v.LatencyMs, escapeCell(v.Message))
	}

	var withEvidence []checks.Verdict
	for _, v := range a.Verdicts {
		if len(v.Evidence) > 0 {
			withEvidence = append(withEvidence, v)
		}
	}
	if len(withEvidence) > 0 {
		b.WriteString("\n## Evidence\n")
		for _, v := range withEvidence {
			fmt.Fprintf(&b, "\n### %s\n\n", v.CheckID)
			keys := make([]string, 0, len(v.Evidence))
			for k := range v.Evidence {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- `%s`: %s\n", k, escapeCell(v.Evidence[k]))
			}
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
