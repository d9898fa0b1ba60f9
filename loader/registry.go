// Package loader implements the Dynamic-Loader State (C1) and the
// guest-ABI loader syscalls (C2) of §4.1/§4.2: an in-memory registry of
// dynamically loaded child modules keyed by opaque handle, symbol
// resolution against a child's exports and the shared linear memory, and
// the dl_open/dl_sym/dl_close/dl_error syscalls that drive it.
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/engine"
)

// Handle identifies a dynamically loaded module within one guest process.
// Handles are issued monotonically from 1 and never reused (§3 invariant).
type Handle uint32

// LoadedModule is the registry's record for one loaded child: its instance
// and the linear memory it shares with the process's primary instance.
// §3 invariant: memory is always the *same* object as the primary's memory.
type LoadedModule struct {
	Instance *engine.Instance
	Memory   api.Memory
}

// Registry is C1: the per-guest-process dynamic-loader state. All mutation
// is serialized by mu; symbol lookups release mu before touching guest
// memory so they don't block concurrent registry mutation from another
// worker (e.g. a process-kill teardown) (§4.1 "Concurrency").
type Registry struct {
	mu      sync.Mutex
	modules map[Handle]*LoadedModule
	order   []Handle // registration order: ctor/dtor order (§ SUPPLEMENTED)
	next    uint32

	lastErrMu sync.Mutex
	lastErr   string
}

// NewRegistry creates an empty registry. Handles start at 1; 0 is invalid.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[Handle]*LoadedModule)}
}

// Clone returns an independent registry with the same loaded-module
// contents but its own guard, per §4.1 "Clone semantics must preserve
// content but not share locks".
func (r *Registry) Clone() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := &Registry{
		modules: make(map[Handle]*LoadedModule, len(r.modules)),
		order:   append([]Handle(nil), r.order...),
		next:    r.next,
	}
	for h, m := range r.modules {
		clone.modules[h] = m
	}
	return clone
}

// Register allocates a fresh, strictly increasing handle for (instance,
// memory) and runs the new module's __wasm_call_ctors if exported.
// Constructors of modules registered earlier are not run again. A
// constructor failure is reported to the caller but never rolls the handle
// back — it stays registered (§4.1; dl_open step 9 backs onto this to
// return INVAL while still keeping the handle usable for dl_sym/dl_close).
func (r *Registry) Register(ctx context.Context, instance *engine.Instance, memory api.Memory) (Handle, error) {
	r.mu.Lock()
	r.next++
	h := Handle(r.next)
	lm := &LoadedModule{Instance: instance, Memory: memory}
	r.modules[h] = lm
	r.order = append(r.order, h)
	r.mu.Unlock()

	if ctors := instance.ExportedFunction("__wasm_call_ctors"); ctors != nil {
		if _, err := ctors.Call(ctx); err != nil {
			r.setLastError("handle %d: __wasm_call_ctors: %v", h, err)
			Logger().Warn("constructor failed", zap.Uint32("handle", uint32(h)), zap.Error(err))
			return h, err
		}
	}

	return h, nil
}

// Lookup resolves symbol against handle's instance exports per §4.1:
//  1. symbol must name an exported integer (32- or 64-bit) global;
//  2. its value is a byte offset O into the shared linear memory;
//  3. the read width at O is chosen by alignment and bounds;
//  4. the result is zero-extended to 64 bits.
//
// Function-valued symbols are not resolved (Non-goals, §1).
func (r *Registry) Lookup(handle Handle, symbol string) (uint64, bool) {
	r.mu.Lock()
	lm, ok := r.modules[handle]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}

	offset, ok := lm.Instance.IntegerGlobal(symbol)
	if !ok {
		return 0, false
	}

	if lm.Memory == nil {
		return 0, false
	}
	return abi.ReadAligned(lm.Memory, offset)
}

// CallDestructors invokes __wasm_call_dtors on every registered module, in
// registration order, logging and ignoring any failure (§4.1).
func (r *Registry) CallDestructors(ctx context.Context) {
	r.mu.Lock()
	order := append([]Handle(nil), r.order...)
	modules := make(map[Handle]*LoadedModule, len(r.modules))
	for h, m := range r.modules {
		modules[h] = m
	}
	r.mu.Unlock()

	for _, h := range order {
		lm, ok := modules[h]
		if !ok {
			continue // closed before teardown
		}
		dtors := lm.Instance.ExportedFunction("__wasm_call_dtors")
		if dtors == nil {
			continue
		}
		if _, err := dtors.Call(ctx); err != nil {
			r.setLastError("handle %d: __wasm_call_dtors: %v", h, err)
			Logger().Warn("destructor failed", zap.Uint32("handle", uint32(h)), zap.Error(err))
		}
	}
}

// Close removes handle from the registry. Per §4.2 this is a no-op at the
// guest-ABI surface (dl_close always returns SUCCESS regardless); Close
// exists for process-teardown cleanup and future use (§4.1).
func (r *Registry) Close(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, handle)
	// handle is never reallocated: r.next only increases.
}

// Get returns the loaded module for handle, if any.
func (r *Registry) Get(handle Handle) (*LoadedModule, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lm, ok := r.modules[handle]
	return lm, ok
}

// Len reports the number of currently registered (non-closed) handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modules)
}

// LastError returns the most recent human-readable diagnostic recorded by a
// swallowed constructor/destructor failure, retrievable via dl_error once
// that syscall is wired past its current stub (§9 Open Questions).
func (r *Registry) LastError() string {
	r.lastErrMu.Lock()
	defer r.lastErrMu.Unlock()
	return r.lastErr
}

func (r *Registry) setLastError(format string, args ...any) {
	r.lastErrMu.Lock()
	defer r.lastErrMu.Unlock()
	r.lastErr = fmt.Sprintf(format, args...)
}
