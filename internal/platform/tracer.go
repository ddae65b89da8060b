package platform

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vaultguard/internal/probe"
)

const (
	DefaultStatusPath = "/proc/self/status"
	DefaultProcRoot   = "/proc"
)

// ProcStatusTracer reads TracerPid from the process status file and the
// tracer's command name from <ProcRoot>/<pid>/comm.
type ProcStatusTracer struct {
	StatusPath string
	ProcRoot   string
}

func NewProcStatusTracer() *ProcStatusTracer {
	return &ProcStatusTracer{StatusPath: DefaultStatusPath, ProcRoot: DefaultProcRoot}
}

func (t *ProcStatusTracer) Tracer(ctx context.Context) (probe.TracerInfo, error) {
	path := t.StatusPath
	if path == "" {
		path = DefaultStatusPath
	}
	pid, err := readTracerPID(path)
	if err != nil {
		return probe.TracerInfo{}, err
	}
	info := probe.TracerInfo{PID: pid}
	if pid == 0 {
		return info, nil
	}
	root := t.ProcRoot
	if root == "" {
		root = DefaultProcRoot
	}
	// The tracer may already be gone or unreadable; the PID alone is enough.
	if comm, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "comm")); err == nil {
		info.Name = strings.TrimSpace(string(comm))
	}
	return info, nil
}

func readTracerPID(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read process status: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		v, ok := strings.CutPrefix(sc.Text(), "TracerPid:")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parse TracerPid %q: %w", strings.TrimSpace(v), err)
		}
		return pid, nil
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read process status: %w", err)
	}
	return 0, fmt.Errorf("no TracerPid field in %s", path)
}
