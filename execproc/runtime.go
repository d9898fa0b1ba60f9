package execproc

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmproc/core/engine"
	"github.com/wasmproc/core/loader"
	"github.com/wasmproc/core/sched"
	"github.com/wasmproc/core/taskmgr"
)

// Recycler runs on the store's owning host thread when the guest finally
// leaves execution by exit or error, to release host-side resources pinned
// to that thread (§3 "Task Recycler"). It does not run when the guest
// descends into deep sleep; across a suspension and its resumption it runs
// once, at final termination.
type Recycler func(ctx context.Context)

// OnTaintFunc is the durable-signal hook of §6's Runtime collaborator.
type OnTaintFunc func(TaintReason)

// Runtime is the Runtime collaborator of §6: load_module, task_manager,
// and on_taint. Host-ABI loader functions (dl_open/dl_sym/dl_close/
// dl_error) are bound once against the Engine, the first time any process
// spawned through this Runtime needs them; resolveLoader then dispatches
// each call to the Loader belonging to the calling module's process.
type Runtime struct {
	Engine *engine.Engine
	Tasks  *taskmgr.Manager
	Cache  *engine.ModuleCache
	OnTaint OnTaintFunc

	bindOnce sync.Once
	bindErr  error

	mu         sync.Mutex
	loaders    map[api.Module]*loader.Loader
	schedulers map[api.Module]*sched.Scheduler
}

// NewRuntime wires an Engine, TaskManager, and ModuleCache together. cache
// may be nil to disable compiled-module caching.
func NewRuntime(eng *engine.Engine, tasks *taskmgr.Manager, cache *engine.ModuleCache) *Runtime {
	return &Runtime{
		Engine:     eng,
		Tasks:      tasks,
		Cache:      cache,
		loaders:    make(map[api.Module]*loader.Loader),
		schedulers: make(map[api.Module]*sched.Scheduler),
	}
}

// ActiveScheduler resolves the C4 scheduler belonging to the guest process
// mod is a member of. §4.4 notes the DeepSleep trigger is produced by
// "guest ABI calls that implement the suspension side" outside this core's
// named C1/C2 surface; a host integration adding such a call (e.g. a
// blocking poll) resolves the right scheduler to Suspend/Resume against
// the same way loader syscalls resolve the right Loader.
func (rt *Runtime) ActiveScheduler(mod api.Module) (*sched.Scheduler, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.schedulers[mod]
	return s, ok
}

func (rt *Runtime) registerScheduler(mod api.Module, s *sched.Scheduler) {
	rt.mu.Lock()
	rt.schedulers[mod] = s
	rt.mu.Unlock()
}

func (rt *Runtime) unregisterScheduler(mod api.Module) {
	rt.mu.Lock()
	delete(rt.schedulers, mod)
	rt.mu.Unlock()
}

// LoadModule compiles wasmBytes, optionally through the shared module
// cache (§6 "load_module(bytes) -> Module").
func (rt *Runtime) LoadModule(ctx context.Context, wasmBytes []byte) (*engine.Module, error) {
	if rt.Cache != nil {
		return rt.Cache.LoadOrCompile(ctx, wasmBytes)
	}
	return rt.Engine.LoadModule(ctx, wasmBytes)
}

// taint invokes OnTaint if set and always logs, since a durable signal with
// no observer attached would otherwise be silent.
func (rt *Runtime) taint(reason TaintReason) {
	Logger().Warn("runtime tainted",
		zap.String("kind", reason.Kind.String()),
		zap.Uint32("exit_code", reason.ExitCode),
		zap.Error(reason.Cause))
	if rt.OnTaint != nil {
		rt.OnTaint(reason)
	}
}

// ensureHostModuleBound binds dl_open/dl_sym/dl_close/dl_error exactly
// once per Runtime, visible to every module the underlying Engine
// instantiates thereafter (§5: "host-ABI namespaces bound once... visible
// to every subsequently instantiated module").
func (rt *Runtime) ensureHostModuleBound(ctx context.Context) error {
	rt.bindOnce.Do(func() {
		rt.bindErr = loader.BindHostModule(ctx, rt.Engine, rt.resolveLoader)
	})
	return rt.bindErr
}

func (rt *Runtime) resolveLoader(mod api.Module) *loader.Loader {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loaders[mod]
}

func (rt *Runtime) registerLoader(mod api.Module, l *loader.Loader) {
	rt.mu.Lock()
	rt.loaders[mod] = l
	rt.mu.Unlock()
}

func (rt *Runtime) unregisterLoader(mod api.Module) {
	rt.mu.Lock()
	delete(rt.loaders, mod)
	rt.mu.Unlock()
}
