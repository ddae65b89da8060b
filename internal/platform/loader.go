package platform

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLibraryDirs are searched after LD_LIBRARY_PATH.
var DefaultLibraryDirs = []string{
	"/lib",
	"/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/usr/local/lib",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
}

// SearchPathLoader treats a library as loadable when a matching shared
// object is resolvable on the search path, which is what the dynamic loader
// would find. Candidate "frida" matches frida, frida.so and libfrida.so.
//
// Directories that cannot be read are skipped, as the dynamic loader skips
// them. Any other stat failure is reported only if no later directory holds
// the library.
type SearchPathLoader struct {
	Dirs []string
}

// NewSearchPathLoader searches dirs, or LD_LIBRARY_PATH followed by
// DefaultLibraryDirs when dirs is empty.
func NewSearchPathLoader(dirs []string) *SearchPathLoader {
	if len(dirs) == 0 {
		dirs = append(filepath.SplitList(os.Getenv("LD_LIBRARY_PATH")), DefaultLibraryDirs...)
	}
	var clean []string
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			clean = append(clean, d)
		}
	}
	return &SearchPathLoader{Dirs: clean}
}

func libraryFileNames(name string) []string {
	out := []string{name}
	if !strings.Contains(name, ".so") {
		out = append(out, name+".so")
		if !strings.HasPrefix(name, "lib") {
			out = append(out, "lib"+name+".so")
		}
	}
	return out
}

func (l *SearchPathLoader) TryLoad(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	if filepath.IsAbs(name) {
		return regularFile(name)
	}
	var firstErr error
	for _, dir := range l.Dirs {
		for _, fn := range libraryFileNames(name) {
			ok, err := regularFile(filepath.Join(dir, fn))
			if errors.Is(err, fs.ErrPermission) {
				break
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, firstErr
}

// regularFile reports whether path is an existing non-directory. A missing
// path or missing parent is (false, nil); anything else is an error.
func regularFile(path string) (bool, error) {
	fi, err := os.Stat(path)
	switch {
	case err == nil:
		return !fi.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist), isNotDir(err):
		return false, nil
	default:
		return false, err
	}
}
