package loader

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/engine"
	"github.com/wasmproc/core/fsview"
)

// PrimaryModuleName is the import-module name a dynamically loaded child
// must use for its "memory" import. The primary instance of every guest
// process is instantiated under this name (§4.2 step 6: "env namespace
// whose memory entry is the primary instance's linear memory").
const PrimaryModuleName = "env"

// HostModuleName is the import-module name under which dl_open/dl_sym/
// dl_close/dl_error are bound, once per Engine, so every subsequently
// instantiated module (primary or child) resolves them the same way.
const HostModuleName = "wasmproc_loader"

// Loader is C2: it marshals guest pointers, drives a Registry (C1), and
// compiles/instantiates dynamically loaded children via an Engine.
type Loader struct {
	Engine   *engine.Engine
	Cache    *engine.ModuleCache
	FS       fsview.FS
	Registry *Registry

	// Primary is the calling process's primary instance, whose memory
	// every child shares (§4.2 step 6).
	Primary *engine.Instance
}

// NewLoader constructs a Loader bound to one guest process's registry and
// primary instance.
func NewLoader(eng *engine.Engine, cache *engine.ModuleCache, fs fsview.FS, primary *engine.Instance) *Loader {
	return &Loader{
		Engine:   eng,
		Cache:    cache,
		FS:       fs,
		Registry: NewRegistry(),
		Primary:  primary,
	}
}

// BindHostModule registers dl_open/dl_sym/dl_close/dl_error as a host
// module on eng's runtime, visible to the primary and to every
// subsequently instantiated module. Called once per Engine (§5: host-ABI
// namespaces bound once, not per instance).
func BindHostModule(ctx context.Context, eng *engine.Engine, resolve func(api.Module) *Loader) error {
	_, err := eng.Runtime().NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, pathPtr, pathLen uint32, flags int32, outHandlePtr uint32) uint32 {
			l := resolve(mod)
			return uint32(l.dlOpen(ctx, mod.Memory(), pathPtr, pathLen, flags, outHandlePtr))
		}).
		Export("dl_open").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, handle uint32, symPtr, symLen, outValuePtr uint32) uint32 {
			l := resolve(mod)
			return uint32(l.dlSym(mod.Memory(), handle, symPtr, symLen, outValuePtr))
		}).
		Export("dl_sym").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, handle uint32) uint32 {
			l := resolve(mod)
			return uint32(l.dlClose(handle))
		}).
		Export("dl_close").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, bufPtr, bufLen, outNWrittenPtr uint32) uint32 {
			l := resolve(mod)
			return uint32(l.dlError(mod.Memory(), bufPtr, bufLen, outNWrittenPtr))
		}).
		Export("dl_error").
		Instantiate(ctx)
	return err
}

// dlOpen implements §4.2 dl_open. No signal, backoff or snapshot pre-amble
// runs before it: neither sched nor execproc implements one, so dlOpen
// starts directly with the flag check as a blocking host call.
func (l *Loader) dlOpen(ctx context.Context, callerMem api.Memory, pathPtr, pathLen uint32, flags int32, outHandlePtr uint32) abi.Errno {
	if abi.OpenFlag(flags) != abi.FlagNow {
		return abi.NOTSUP
	}

	path, ok := abi.ReadString(callerMem, pathPtr, pathLen)
	if !ok {
		return abi.INVAL
	}

	data, err := l.FS.ReadFile(path)
	if err != nil {
		Logger().Warn("dl_open read failed", zap.String("path", path), zap.Error(err))
		return abi.IO
	}

	var mod *engine.Module
	if l.Cache != nil {
		mod, err = l.Cache.LoadOrCompile(ctx, data)
	} else {
		mod, err = l.Engine.LoadModule(ctx, data)
	}
	if err != nil {
		Logger().Warn("dl_open compile failed", zap.String("path", path), zap.Error(err))
		return abi.INVAL
	}

	if l.Primary == nil || l.Primary.Memory() == nil {
		return abi.INVAL
	}

	inst, err := mod.Instantiate(ctx, &engine.InstantiateConfig{Name: ""})
	if err != nil {
		Logger().Warn("dl_open instantiate failed", zap.String("path", path), zap.Error(err))
		return abi.INVAL
	}

	h, ctorErr := l.Registry.Register(ctx, inst, l.Primary.Memory())

	if !abi.WriteU32(callerMem, outHandlePtr, uint32(h)) {
		return abi.INVAL
	}
	if ctorErr != nil {
		// Handle stays registered (§4.1, §9); only the return code reports
		// the constructor failure to the guest.
		return abi.INVAL
	}
	return abi.SUCCESS
}

// dlSym implements §4.2 dl_sym.
func (l *Loader) dlSym(callerMem api.Memory, handle, symPtr, symLen, outValuePtr uint32) abi.Errno {
	sym, ok := abi.ReadString(callerMem, symPtr, symLen)
	if !ok {
		return abi.INVAL
	}

	value, ok := l.Registry.Lookup(Handle(handle), sym)
	if !ok {
		return abi.INVAL
	}

	if !abi.WriteU64(callerMem, outValuePtr, value) {
		return abi.INVAL
	}
	return abi.SUCCESS
}

// dlClose implements §4.2 dl_close: an unconditional SUCCESS no-op stub at
// the ABI surface, even though Registry.Close is fully implemented below
// it (§9 Open Questions: real teardown is wired up to C1 but not yet
// exposed to the guest).
func (l *Loader) dlClose(handle uint32) abi.Errno {
	_ = handle
	return abi.SUCCESS
}

// dlError implements §4.2 dl_error: a SUCCESS stub that never touches the
// output buffer. Registry.LastError already tracks the diagnostic a
// non-stub dl_error would format and copy out (§9 Open Questions).
func (l *Loader) dlError(callerMem api.Memory, bufPtr, bufLen, outNWrittenPtr uint32) abi.Errno {
	_, _, _ = callerMem, bufPtr, bufLen
	return abi.SUCCESS
}
