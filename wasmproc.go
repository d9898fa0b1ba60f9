package wasmproc

import (
	"context"
	"fmt"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/binpkg"
	"github.com/wasmproc/core/engine"
	"github.com/wasmproc/core/execproc"
	"github.com/wasmproc/core/fsview"
	"github.com/wasmproc/core/taskmgr"
)

// Config configures Runtime construction. A nil Config (passed to New)
// selects every default below.
type Config struct {
	// Engine configures the underlying wazero engine. Nil selects
	// engine.New's defaults.
	Engine *engine.Config

	// Workers is the task manager's pinned worker count (§5). Defaults to 4.
	Workers int
	// QueueDepth bounds each worker's pending task queue. Defaults to 64.
	QueueDepth uint64

	// ModuleCacheSize bounds the compiled-module LRU cache (§3 "cheap to
	// clone... freely shareable"). 0 disables caching entirely, so a
	// non-nil Config that leaves it unset runs without a cache. The
	// 128-entry default applies only when New is given a nil Config.
	ModuleCacheSize int

	// BaseFS is consulted underneath each spawn's package overlay, for
	// guests that reference paths outside their own package. Nil means
	// no base filesystem — only a spawned package's own atoms resolve.
	BaseFS fsview.FS

	// OnTaint receives every durable taint signal (§6) across every
	// process spawned through this Runtime.
	OnTaint execproc.OnTaintFunc
}

func (c *Config) workers() int {
	if c == nil || c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

func (c *Config) queueDepth() uint64 {
	if c == nil || c.QueueDepth == 0 {
		return 64
	}
	return c.QueueDepth
}

func (c *Config) moduleCacheSize() int {
	if c == nil {
		return 128
	}
	return c.ModuleCacheSize
}

func (c *Config) baseFS() fsview.FS {
	if c == nil {
		return nil
	}
	return c.BaseFS
}

// Runtime is the top-level facade of §2's data flow: it unions a spawned
// package's commands into a per-spawn file-system view, compiles the
// selected command's atom, and hands the module to execproc for
// bootstrap and invocation.
type Runtime struct {
	engine *engine.Engine
	tasks  *taskmgr.Manager
	cache  *engine.ModuleCache
	exec   *execproc.Runtime
	baseFS fsview.FS
}

// New constructs a Runtime from cfg (nil selects defaults).
func New(ctx context.Context, cfg *Config) (*Runtime, error) {
	var eng *engine.Engine
	var err error
	if cfg != nil && cfg.Engine != nil {
		eng, err = engine.NewWithConfig(ctx, cfg.Engine)
	} else {
		eng, err = engine.New(ctx)
	}
	if err != nil {
		return nil, err
	}

	var cache *engine.ModuleCache
	if size := cfg.moduleCacheSize(); size > 0 {
		cache, err = engine.NewModuleCache(eng, size)
		if err != nil {
			eng.Close(ctx)
			return nil, err
		}
	}

	tasks := taskmgr.New(cfg.workers(), cfg.queueDepth())
	exec := execproc.NewRuntime(eng, tasks, cache)
	if cfg != nil {
		exec.OnTaint = cfg.OnTaint
	}

	return &Runtime{
		engine: eng,
		tasks:  tasks,
		cache:  cache,
		exec:   exec,
		baseFS: cfg.baseFS(),
	}, nil
}

// Close releases every resource the Runtime owns. All spawned processes
// should have finished (joined or polled to completion) first.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.tasks.Close()
	return rt.engine.Close(ctx)
}

// Exec exposes the underlying execproc.Runtime, for callers that need
// ActiveScheduler to wire a guest-ABI suspension call outside this core's
// own C1/C2 surface (§4.4).
func (rt *Runtime) Exec() *execproc.Runtime {
	return rt.exec
}

// SpawnErrorKind classifies a Spawn-time failure per §7's SpawnError.
type SpawnErrorKind int

const (
	SpawnMissingEntrypoint SpawnErrorKind = iota
	SpawnFileSystemError
	SpawnModuleCompile
	SpawnUnknown
)

func (k SpawnErrorKind) String() string {
	switch k {
	case SpawnMissingEntrypoint:
		return "MissingEntrypoint"
	case SpawnFileSystemError:
		return "FileSystemError"
	case SpawnModuleCompile:
		return "ModuleCompile"
	default:
		return "Unknown"
	}
}

// SpawnError is §7's SpawnError: MissingEntrypoint{package_id},
// FileSystemError{cause}, ModuleCompile{cause}, Unknown.
type SpawnError struct {
	Kind      SpawnErrorKind
	PackageID string
	Cause     error
}

func (e *SpawnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("spawn %s: %s: %v", e.PackageID, e.Kind, e.Cause)
	}
	return fmt.Sprintf("spawn %s: %s", e.PackageID, e.Kind)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// atomPath is the guest-visible path a package command's atom resolves
// under once unioned into a spawn's file-system view.
func atomPath(commandName string) string {
	return "/" + commandName + ".wasm"
}

// spawnFailed constructs an already-Finished ThreadHandle and the typed
// SpawnError to return alongside it, per §7: "the guest thread is marked
// Finished with an appropriate code before the error returns."
func spawnFailed(kind SpawnErrorKind, packageID string, cause error) (*execproc.ThreadHandle, error) {
	thread := execproc.NewThreadHandle()
	thread.MarkFinished(execproc.ThreadResult{ExitCode: uint32(abi.NOEXEC), Err: cause})
	return thread, &SpawnError{Kind: kind, PackageID: packageID, Cause: cause}
}

// Spawn implements §2's data flow: pkg's commands are unioned into a
// fresh per-spawn overlay, the selected command (command, or pkg's own
// Entrypoint if command is "") is compiled, and the resulting module is
// handed to execproc.Spawn to bootstrap and run on a host worker.
//
// The returned ThreadHandle is always non-nil, even on error: a
// spawn-time failure still returns a handle already Finished with NOEXEC,
// so a caller that only ever Joins/Polls thread handles never needs a
// special case for a Spawn that failed before a worker was ever assigned.
func (rt *Runtime) Spawn(ctx context.Context, pkg *binpkg.BinaryPackage, command string, recycler execproc.Recycler) (*execproc.ThreadHandle, error) {
	var cmd binpkg.Command
	if command != "" {
		c, ok := pkg.Command(command)
		if !ok {
			return spawnFailed(SpawnMissingEntrypoint, pkg.ID(), nil)
		}
		cmd = c
	} else {
		c, ok := pkg.Entrypoint()
		if !ok {
			return spawnFailed(SpawnMissingEntrypoint, pkg.ID(), nil)
		}
		cmd = c
	}

	overlay := fsview.NewOverlay(rt.baseFS)
	contents := make(map[string][]byte, len(pkg.Commands()))
	for _, name := range pkg.Commands() {
		c, _ := pkg.Command(name)
		contents[atomPath(name)] = c.Atom
	}
	overlay.ConditionalUnion(contents)

	data, err := overlay.ReadFile(atomPath(cmd.Name))
	if err != nil {
		return spawnFailed(SpawnFileSystemError, pkg.ID(), err)
	}

	module, err := rt.exec.LoadModule(ctx, data)
	if err != nil {
		return spawnFailed(SpawnModuleCompile, pkg.ID(), err)
	}

	processID := pkg.ID() + "/" + cmd.Name
	env := execproc.NewEnv(processID, overlay)

	thread, err := execproc.Spawn(ctx, rt.exec, env, module, recycler)
	if err != nil {
		return spawnFailed(SpawnUnknown, pkg.ID(), err)
	}
	return thread, nil
}
