package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vaultguard/internal/policy"
)

// recordStream holds the json/ndjson encoding shared by EmitSink and
// FileSink. json keeps the assessment for finish; ndjson writes each
// record as it arrives.
type recordStream struct {
	w          io.Writer
	format     string
	assessment *policy.TrustAssessment
}

func validStreamFormat(format string) bool {
	return format == "json" || format == "ndjson"
}

// inferStreamFormat maps a file extension onto a stream format.
func inferStreamFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".ndjson", ".jsonl":
		return "ndjson", nil
	default:
		return "", fmt.Errorf("cannot infer output format from file extension %q", ext)
	}
}

func (s *recordStream) write(v any) error {
	switch s.format {
	case "json":
		if a, ok := v.(policy.TrustAssessment); ok {
			s.assessment = &a
		}
		return nil
	case "ndjson":
		rec, ok := streamRecord(v)
		if !ok {
			return nil
		}
		if err := json.NewEncoder(s.w).Encode(rec); err != nil {
			return err
		}
		return flushIfPossible(s.w)
	default:
		return fmt.Errorf("unsupported output format: %s", s.format)
	}
}

func (s *recordStream) finish() error {
	if s.format == "json" {
		return writeAggregate(s.w, s.assessment)
	}
	return nil
}

// writeAggregate encodes the final assessment, or nothing if the run never
// produced one.
func writeAggregate(w io.Writer, a *policy.TrustAssessment) error {
	if a == nil {
		return nil
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(a); err != nil {
		return err
	}
	return flushIfPossible(w)
}

// atomicFile buffers into a temporary sibling of path and renames it into
// place on commit. Readers see either the previous file or the complete new
// one.
type atomicFile struct {
	path string
	tmp  *os.File
	buf  *bufio.Writer
}

func createAtomic(path string) (*atomicFile, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &atomicFile{path: path, tmp: tmp, buf: bufio.NewWriter(tmp)}, nil
}

func (f *atomicFile) Write(p []byte) (int, error) { return f.buf.Write(p) }

func (f *atomicFile) Flush() error { return f.buf.Flush() }

// commit publishes the file. With abort set, or on any error, the temporary
// file is removed and path is left untouched.
func (f *atomicFile) commit(abort bool) error {
	err := f.buf.Flush()
	if closeErr := f.tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil && !abort {
		if err = os.Chmod(f.tmp.Name(), 0o644); err == nil {
			err = os.Rename(f.tmp.Name(), f.path)
		}
	}
	if err != nil || abort {
		_ = os.Remove(f.tmp.Name())
	}
	return err
}
