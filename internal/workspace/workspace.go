// Package workspace owns the private temporary directory of one import. The
// directory is created before any download and removed on every exit path by
// deferring Release right after Acquire.
package workspace

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Workspace is a scratch directory exclusively owned by one import run.
type Workspace struct {
	fs   afero.Fs
	dir  string
	once sync.Once
	err  error
}

// Acquire creates a fresh directory under the filesystem's temp location.
// The directory name carries a random run id so concurrent processes never
// collide.
func Acquire(fs afero.Fs, prefix string) (*Workspace, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if prefix == "" {
		prefix = "youtube2mediawiki"
	}
	dir, err := afero.TempDir(fs, "", fmt.Sprintf("%s-%s-", prefix, uuid.NewString()[:8]))
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{fs: fs, dir: dir}, nil
}

// Dir is the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace root. Names are reduced to their base so
// a title can never escape the directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Release removes the directory and everything in it. Safe to call more than once.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		w.err = w.fs.RemoveAll(w.dir)
	})
	return w.err
}
