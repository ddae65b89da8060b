package output

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("output manager is closed")

// Sink defines a destination for assessment records: Event,
// checks.Verdict and policy.TrustAssessment values.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans assessment records out to every sink. Writes from concurrent
// assessments are serialised so each sink sees whole records.
type Manager struct {
	mu     sync.Mutex
	sinks  []Sink
	closed bool
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	if s == nil {
		return fmt.Errorf("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Len reports the number of sinks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

// Write delivers v to every sink, including those after a failing one.
func (m *Manager) Write(v any) error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(v); err != nil {
			errs = append(errs, fmt.Errorf("write %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors writing to sinks: %w", errors.Join(errs...))
	}
	return nil
}

// Close closes every sink once. Later calls return nil.
func (m *Manager) Close() error {
	if m == nil {
		return fmt.Errorf("output manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sinks: %w", errors.Join(errs...))
	}
	return nil
}
