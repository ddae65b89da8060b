package output

import (
	"fmt"
	"io"
	"sync"
)

// EmitSink writes additional structured outputs.
//
// Formats:
//   - json: keeps the trust assessment and writes it as one JSON object on Close
//   - ndjson: streams Event values (one JSON object per line)
type EmitSink struct {
	mu     sync.Mutex
	stream recordStream
}

func NewEmitSink(w io.Writer, format string) (*EmitSink, error) {
	if w == nil {
		return nil, fmt.Errorf("emit sink writer must not be nil")
	}
	if !validStreamFormat(format) {
		return nil, fmt.Errorf("unsupported emit format: %s", format)
	}
	return &EmitSink{stream: recordStream{w: w, format: format}}, nil
}

func (s *EmitSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.write(v)
}

func (s *EmitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.finish()
}
