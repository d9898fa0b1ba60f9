package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmproc/core/errors"
)

// Instance is a live instantiation of a Module: its exported functions,
// globals, and at most one linear memory named "memory" (§3). Not
// thread-safe — every call must run on the host thread that owns it.
type Instance struct {
	module *Module
	wazMod api.Module
}

// Memory returns the instance's linear memory, or nil if it exports none.
func (i *Instance) Memory() api.Memory {
	return i.wazMod.Memory()
}

// Module exposes the underlying wazero module, for collaborators (sched)
// that need it directly rather than through Instance's narrower surface.
func (i *Instance) Module() api.Module {
	return i.wazMod
}

// ExportedFunction returns an exported function by name, or nil if absent.
func (i *Instance) ExportedFunction(name string) api.Function {
	return i.wazMod.ExportedFunction(name)
}

// Global returns an exported global by name, or nil if absent.
func (i *Instance) Global(name string) api.Global {
	return i.wazMod.ExportedGlobal(name)
}

// IntegerGlobal reads an exported global's value as a zero-extended u64,
// accepting only 32- or 64-bit integer globals per §4.1 lookup step 1
// ("Accept only integer globals; any other type yields None").
func (i *Instance) IntegerGlobal(name string) (uint64, bool) {
	g := i.Global(name)
	if g == nil {
		return 0, false
	}
	switch g.Type() {
	case api.ValueTypeI32:
		return uint64(uint32(g.Get())), true
	case api.ValueTypeI64:
		return g.Get(), true
	default:
		return 0, false
	}
}

// Call invokes an exported function with no argument marshaling beyond raw
// u64 stack values — the guest ABI is POSIX-like syscalls, not the
// Component Model, so no canonical ABI lifting is needed here.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseExec, "exported function", name)
	}
	return fn.Call(ctx, args...)
}

// Close tears down the instance, releasing its store-side resources.
func (i *Instance) Close(ctx context.Context) error {
	return i.wazMod.Close(ctx)
}
