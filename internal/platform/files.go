package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

// OSFileStater checks paths on the local filesystem without following the
// final symlink.
type OSFileStater struct{}

func (OSFileStater) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist), isNotDir(err):
		return false, nil
	default:
		return false, err
	}
}

const DefaultMapsPath = "/proc/self/maps"

// ProcMapsLister lists the file-backed mappings of the current process.
type ProcMapsLister struct {
	Path string
}

func NewProcMapsLister() *ProcMapsLister {
	return &ProcMapsLister{Path: DefaultMapsPath}
}

// LoadedImages returns each mapped pathname once, in first-seen order.
func (l *ProcMapsLister) LoadedImages(ctx context.Context) ([]string, error) {
	path := l.Path
	if path == "" {
		path = DefaultMapsPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read process mappings: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// address perms offset dev inode pathname
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		name := strings.Join(fields[5:], " ")
		if !strings.HasPrefix(name, "/") {
			continue // [heap], [stack], [vdso]
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read process mappings: %w", err)
	}
	return out, nil
}
