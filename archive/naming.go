// Package archive writes decoded events to rotating CSV chunk files and
// keeps the companion session summary file.
//
// Every file is created exclusively: an existing file with the same name
// is never opened, truncated or appended to.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pithecene-io/tlist/lode"
)

// ErrExists is the sentinel matched by *ExistsError.
var ErrExists = errors.New("output file already exists")

// ExistsError reports an output file that is already present on disk.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, ErrExists)
}

// Is reports whether target is ErrExists.
func (e *ExistsError) Is(target error) bool {
	return target == ErrExists
}

// Naming derives deterministic output paths for one session.
type Naming struct {
	// Dir is the data root; files go to Dir/YYYYMMDD/.
	Dir string
	// Prefix and Suffix frame chunk names: <Prefix>_<date>_<HHMM>_<n>.<Suffix>.
	Prefix string
	Suffix string
	// Start is the session start time used in every name.
	Start time.Time
}

// SafeName replaces spaces so the value can be used in a file name.
func SafeName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

func (n Naming) date() string { return n.Start.Format("20060102") }

func (n Naming) stem() string {
	return fmt.Sprintf("%s_%s_%s", SafeName(n.Prefix), n.date(), n.Start.Format("1504"))
}

// DateDir is the per-date directory holding all files of the session.
func (n Naming) DateDir() string {
	return filepath.Join(n.Dir, n.date())
}

// ChunkPath returns the path of chunk index (1-based).
func (n Naming) ChunkPath(index uint32) string {
	name := fmt.Sprintf("%s_%d", n.stem(), index)
	if suffix := SafeName(n.Suffix); suffix != "" {
		name += "." + suffix
	}
	return filepath.Join(n.DateDir(), name)
}

// SummaryPath returns the path of the session summary file.
func (n Naming) SummaryPath() string {
	return filepath.Join(n.DateDir(), "logInfo_"+n.stem()+".txt")
}

// CapturePath returns the path of the raw capture file.
func (n Naming) CapturePath() string {
	return filepath.Join(n.DateDir(), n.stem()+".tlraw")
}

// Preflight fails with *ExistsError if any of paths already exists.
// It touches nothing on disk.
func Preflight(paths ...string) error {
	for _, p := range paths {
		_, err := os.Lstat(p)
		switch {
		case err == nil:
			return &ExistsError{Path: p}
		case errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return lode.Wrap("stat", p, err)
		}
	}
	return nil
}

// CreateExclusive creates path and its parent directory. It never opens
// an existing file.
func CreateExclusive(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, lode.Wrap("mkdir", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, &ExistsError{Path: path}
		}
		return nil, lode.Wrap("create", path, err)
	}
	return f, nil
}
