package execproc

import (
	"github.com/wasmproc/core/fsview"
	"github.com/wasmproc/core/loader"
)

// Env is the Guest Environment of §3: per-guest-process state threaded
// through run_exec/call_module. The "slot holding the instance/memory
// handles currently in effect for ABI calls" §3 describes is Loader's
// Primary field — populated once, during bootstrap, and never swapped
// again, since this implementation resolves the guest-ABI host module
// against the calling wazero module identity rather than a thread-local
// "active instance" indirection (see DESIGN.md).
type Env struct {
	ProcessID string
	FS        fsview.FS
	Loader    *loader.Loader
	Thread    *ThreadHandle
}

// NewEnv creates an Env for a new guest process. Loader and Thread are
// filled in by Spawn/runExec once the process's primary instance exists.
func NewEnv(processID string, fs fsview.FS) *Env {
	return &Env{ProcessID: processID, FS: fs}
}
