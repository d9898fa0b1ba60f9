// Package engine wraps wazero to compile and instantiate guest Wasm modules.
//
// It intentionally knows nothing about the guest ABI, the loader registry,
// or the deep-sleep protocol: those are external collaborators layered on
// top (packages loader, execproc, sched). The engine's job is limited to
// §6's "Runtime collaborator" contract: load_module(bytes) -> Module, plus
// instantiation and linear-memory access.
package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wasmproc/core/errors"
)

// Config configures engine creation.
type Config struct {
	// MemoryLimitPages bounds memory per instance in 64KB pages. 0 means
	// wazero's default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads turns on the WebAssembly threads proposal (experimental),
	// needed for guest-side atomics. Host functions remain single-threaded
	// per §5: "never yield to another guest on the same worker".
	EnableThreads bool
}

// Engine owns a wazero runtime shared by every guest process spawned through
// it. Host-ABI namespaces bound once here (via HostModuleBuilder) are visible
// to every subsequently instantiated module, primary or dynamically loaded.
type Engine struct {
	runtime wazero.Runtime
}

// New creates an Engine with default configuration.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an Engine with explicit configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &Engine{runtime: rt}, nil
}

// Runtime exposes the underlying wazero runtime so callers (execproc) can
// bind guest-ABI host modules once, visible to every module instantiated
// through this engine thereafter.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases all engine resources. All instances must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// LoadModule compiles raw Wasm bytes into a shareable, cheap-to-clone Module
// (§3 "Compiled Module"). Compilation failure is the caller's cue to map a
// SpawnError.ModuleCompile (§7) or, for dl_open, errno INVAL (§4.2 step 5).
func (e *Engine) LoadModule(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	return &Module{engine: e, compiled: compiled, rawBytes: wasmBytes}, nil
}

// Module is the engine's compiled-module handle: opaque, cheap to clone
// (wraps a wazero.CompiledModule which is itself shareable), instantiated
// independently per guest process.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
	rawBytes []byte
}

// Bytes returns the raw Wasm bytes this module was compiled from.
// engine.ModuleCache keys on a hash of the bytes passed to LoadOrCompile,
// not on this accessor.
func (m *Module) Bytes() []byte {
	return m.rawBytes
}

// InstantiateConfig configures a single instantiation.
type InstantiateConfig struct {
	// Name registers the instance under this name in the engine's wazero
	// runtime, making its exports (including "memory") resolvable as
	// imports by subsequently instantiated modules — the mechanism §4.2
	// step 6 relies on to share the primary's linear memory with a
	// dynamically loaded child.
	Name string
}

// Instantiate creates a live Instance bound to this module.
func (m *Module) Instantiate(ctx context.Context, cfg *InstantiateConfig) (*Instance, error) {
	modCfg := wazero.NewModuleConfig()
	if cfg != nil {
		modCfg = modCfg.WithName(cfg.Name)
	} else {
		modCfg = modCfg.WithName("")
	}

	inst, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		return nil, errors.Instantiation(errors.PhaseExec, err)
	}

	return &Instance{module: m, wazMod: inst}, nil
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// ExportedMemoryName is the only linear memory name §3 recognizes.
const ExportedMemoryName = "memory"
