package output

import (
	"fmt"
	"sync"
)

// FileSink writes the assessment to a file as json or ndjson. The file
// appears at path only once the sink is closed.
type FileSink struct {
	mu     sync.Mutex
	file   *atomicFile
	stream recordStream
	failed bool
}

// NewFileSink infers the format from the extension when format is empty
// (.json, .ndjson, .jsonl).
func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}
	if format == "" {
		var err error
		if format, err = inferStreamFormat(path); err != nil {
			return nil, err
		}
	}
	if !validStreamFormat(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := createAtomic(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &FileSink{file: f, stream: recordStream{w: f, format: format}}, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stream.write(v); err != nil {
		s.failed = true
		return err
	}
	return nil
}

// Close writes the json aggregate, if any, and publishes the file. A sink
// that failed a write leaves no file behind.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.stream.finish()
	if commitErr := s.file.commit(s.failed || err != nil); err == nil {
		err = commitErr
	}
	if err == nil && s.failed {
		err = fmt.Errorf("output file %s not written: an earlier write failed", s.file.path)
	}
	return err
}
