// Package fsview is the File-system collaborator of §6: the host-side
// abstraction the runtime uses to resolve guest paths (dl_open's path
// argument, and any future file-backed syscalls) without hard-wiring the
// process core to the OS filesystem.
package fsview

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/wasmproc/core/errors"
)

// FS resolves guest-visible paths to file contents.
type FS interface {
	// ReadFile returns the full contents addressed by path.
	ReadFile(path string) ([]byte, error)
}

// Local is an FS rooted at a single host directory; guest paths are
// resolved relative to that root and may not escape it.
type Local struct {
	root string
}

// NewLocal returns an FS rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// ReadFile implements FS.
func (l *Local) ReadFile(path string) ([]byte, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(l.root, clean)

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.IO(errors.PhaseLoad, "read "+path, err)
	}
	return data, nil
}

// Overlay layers additional named byte contents over a base FS, consulted
// first. It exists for test fixtures and for ConditionalUnion (below),
// where a guest package ships atoms that should resolve as files without
// touching the host disk.
type Overlay struct {
	base  FS
	mu    sync.RWMutex
	files map[string][]byte
}

// NewOverlay wraps base with an initially empty overlay.
func NewOverlay(base FS) *Overlay {
	return &Overlay{base: base, files: make(map[string][]byte)}
}

// ReadFile implements FS, consulting the overlay before base. A miss with
// no base FS configured (base is nil, per "no base filesystem" embedders)
// returns a not-found error rather than faulting, so a guest dl_open of an
// unmounted path sees errno IO (§4.2 step 4) instead of crashing the host.
func (o *Overlay) ReadFile(path string) ([]byte, error) {
	o.mu.RLock()
	data, ok := o.files[path]
	o.mu.RUnlock()
	if ok {
		return data, nil
	}
	if o.base == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "file", path)
	}
	return o.base.ReadFile(path)
}

// ConditionalUnion merges contents into the overlay, adding only the paths
// not already present. It is idempotent: calling it repeatedly with the
// same contents (as can happen across multiple dl_open calls racing to
// mount the same side-module set) never overwrites an already-mounted
// path or returns an error for the repeat.
func (o *Overlay) ConditionalUnion(contents map[string][]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for path, data := range contents {
		if _, exists := o.files[path]; exists {
			continue
		}
		o.files[path] = data
	}
}
