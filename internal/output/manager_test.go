package output

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"vaultguard/internal/checks"
	"vaultguard/internal/policy"
)

type recordSink struct {
	mu       sync.Mutex
	writes   []any
	closes   int
	writeErr error
	closeErr error
}

func (s *recordSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, v)
	return s.writeErr
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

type failingSink struct{ recordSink }

func TestManager(t *testing.T) {
	verdict := checks.CleanVerdict("clock", "")
	assessment := policy.AnySuspicious{}.Aggregate([]checks.Verdict{verdict})

	t.Run("writes every record to all sinks", func(t *testing.T) {
		a, b := &recordSink{}, &recordSink{}
		mgr := NewManager()
		for _, s := range []Sink{a, b} {
			if err := mgr.AddSink(s); err != nil {
				t.Fatalf("AddSink error: %v", err)
			}
		}
		if mgr.Len() != 2 {
			t.Fatalf("Len: want 2, got %d", mgr.Len())
		}

		for _, v := range []any{StartedEvent(policy.NameAnySuspicious, 1), verdict, assessment} {
			if err := mgr.Write(v); err != nil {
				t.Fatalf("Write(%T) error: %v", v, err)
			}
		}
		if err := mgr.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}

		for name, s := range map[string]*recordSink{"a": a, "b": b} {
			if got := len(s.writes); got != 3 {
				t.Fatalf("sink %s writes: want 3, got %d", name, got)
			}
			if _, ok := s.writes[2].(policy.TrustAssessment); !ok {
				t.Fatalf("sink %s: last record is %T, want TrustAssessment", name, s.writes[2])
			}
		}
	})

	t.Run("AddSink rejects nil", func(t *testing.T) {
		mgr := NewManager()
		if err := mgr.AddSink(nil); err == nil {
			t.Fatalf("AddSink(nil) want error, got nil")
		}
	})

	t.Run("Write reaches sinks after a failing one", func(t *testing.T) {
		bad := &failingSink{recordSink{writeErr: errors.New("disk full")}}
		good := &recordSink{}
		mgr := NewManager()
		_ = mgr.AddSink(bad)
		_ = mgr.AddSink(good)

		err := mgr.Write(verdict)
		if err == nil {
			t.Fatalf("Write want error, got nil")
		}
		msg := err.Error()
		for _, want := range []string{"errors writing to sinks", "disk full", "failingSink"} {
			if !strings.Contains(msg, want) {
				t.Fatalf("Write error missing %q; got: %s", want, msg)
			}
		}
		if len(good.writes) != 1 {
			t.Fatalf("healthy sink missed the record")
		}
	})

	t.Run("Close aggregates errors and runs once", func(t *testing.T) {
		a := &recordSink{closeErr: errors.New("close-a")}
		b := &failingSink{recordSink{closeErr: errors.New("close-b")}}
		mgr := NewManager()
		_ = mgr.AddSink(a)
		_ = mgr.AddSink(b)

		err := mgr.Close()
		if err == nil {
			t.Fatalf("Close want error, got nil")
		}
		msg := err.Error()
		for _, want := range []string{"errors closing sinks", "close-a", "close-b", "recordSink", "failingSink"} {
			if !strings.Contains(msg, want) {
				t.Fatalf("Close error missing %q; got: %s", want, msg)
			}
		}

		if err := mgr.Close(); err != nil {
			t.Fatalf("second Close want nil, got %v", err)
		}
		if a.closes != 1 || b.closes != 1 {
			t.Fatalf("sinks closed more than once: %d, %d", a.closes, b.closes)
		}
		if err := mgr.Write(verdict); !errors.Is(err, ErrClosed) {
			t.Fatalf("Write after Close: want ErrClosed, got %v", err)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := &recordSink{}
		mgr := NewManager()
		_ = mgr.AddSink(s)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = mgr.Write(verdict)
			}()
		}
		wg.Wait()
		if len(s.writes) != 8 {
			t.Fatalf("want 8 writes, got %d", len(s.writes))
		}
	})
}
