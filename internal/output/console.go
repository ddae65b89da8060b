package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"vaultguard/internal/checks"
	"vaultguard/internal/policy"
)

// ConsoleSink prints verdicts as coloured text lines, or as json/ndjson
// through the same stream encoding the other sinks use.
type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	stream          recordStream
	allowedOutcomes map[checks.Outcome]bool
	tags            map[checks.Outcome]*color.Color
	bold            *color.Color
}

// NewConsoleSink writes to w (stdout when nil). filterOutcomes limits which
// verdict lines are printed in text and ndjson modes; the JSON aggregate is
// always complete.
func NewConsoleSink(w io.Writer, format string, filterOutcomes []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{
		writer: w,
		format: format,
		stream: recordStream{w: w, format: format},
		tags: map[checks.Outcome]*color.Color{
			checks.OutcomeClean:        color.New(color.FgGreen),
			checks.OutcomeSuspicious:   color.New(color.FgRed, color.Bold),
			checks.OutcomeInconclusive: color.New(color.FgYellow),
		},
		bold: color.New(color.Bold),
	}

	if len(filterOutcomes) > 0 {
		s.allowedOutcomes = make(map[checks.Outcome]bool)
		for _, o := range filterOutcomes {
			s.allowedOutcomes[checks.Outcome(strings.ToUpper(strings.TrimSpace(o)))] = true
		}
	}

	return s
}

// SetColor forces coloured outcome tags on or off. By default fatih/color
// decides from the terminal.
func (s *ConsoleSink) SetColor(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	toggle := func(c *color.Color) {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	toggle(s.bold)
	for _, c := range s.tags {
		toggle(c)
	}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) filtered(v any) bool {
	if len(s.allowedOutcomes) == 0 {
		return false
	}
	switch t := v.(type) {
	case checks.Verdict:
		return !s.allowedOutcomes[t.Outcome]
	case Event:
		return t.Verdict != nil && !s.allowedOutcomes[t.Outcome]
	}
	return false
}

func (s *ConsoleSink) writeLocked(v any) error {
	switch s.format {
	case "json":
		return s.stream.write(v)
	case "ndjson":
		if s.filtered(v) {
			return nil
		}
		return s.stream.write(v)
	case "text":
		switch t := v.(type) {
		case checks.Verdict:
			if s.filtered(t) {
				return nil
			}
			if err := s.writeVerdict(t); err != nil {
				return err
			}
		case policy.TrustAssessment:
			if _, err := fmt.Fprintf(s.writer, "%s %s\n", s.bold.Sprint("Assessment:"), policy.Summary(t)); err != nil {
				return err
			}
		default:
			// Lifecycle events are not printed in text mode.
			return nil
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) writeVerdict(v checks.Verdict) error {
	tag := "[" + string(v.Outcome) + "]"
	if c, ok := s.tags[v.Outcome]; ok {
		tag = c.Sprint(tag)
	}
	line := fmt.Sprintf("%s %s (%dms)", tag, v.CheckID, v.LatencyMs)
	if v.Message != "" {
		line += " - " + v.Message
	}
	_, err := fmt.Fprintln(s.writer, line)
	return err
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json", "ndjson":
		return s.stream.finish()
	case "text":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}
