// Package execproc implements Module Bootstrap & Invocation (C3): loads a
// compiled module's bytes, constructs an instance, calls _initialize and
// _start, and classifies termination outcomes — including the deep-sleep
// outcome handed off to sched (C4) and taskmgr's resume_wasm_after_poller.
package execproc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/engine"
	"github.com/wasmproc/core/errors"
	"github.com/wasmproc/core/loader"
	"github.com/wasmproc/core/sched"
	"github.com/wasmproc/core/taskmgr"
)

// store bundles the per-process instance with the asyncify/scheduler pair
// that persists across a deep-sleep suspension and its eventual resume
// (§3 "Store": "moves with the guest process between host worker threads
// but is never accessed concurrently from two threads").
type store struct {
	instance  *engine.Instance
	asyncify  *sched.Asyncify
	scheduler *sched.Scheduler
}

// Spawn implements §4.3 step 1: acquires the task manager and submits a
// pinned Wasm task running run_exec for the entire lifetime of the
// process's store. It returns immediately with a ThreadHandle the caller
// can Join or Poll.
func Spawn(ctx context.Context, rt *Runtime, env *Env, module *engine.Module, recycler Recycler) (*ThreadHandle, error) {
	thread := NewThreadHandle()
	env.Thread = thread

	_, err := rt.Tasks.TaskWasm(taskmgr.TaskWasm{
		Run: func(taskCtx context.Context, worker taskmgr.WorkerID) {
			runExec(taskCtx, rt, env, module, recycler, worker)
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTask, errors.KindInternal, err, "submit task_wasm")
	}
	return thread, nil
}

// runExec is the task body of §4.3 step 2: it runs on the worker the task
// manager pinned it to. A run guard (the deferred recover) marks the
// thread Finished with a NOEXEC error if this goroutine panics, so a
// guest-triggered host panic can never leave the thread handle dangling.
func runExec(ctx context.Context, rt *Runtime, env *Env, module *engine.Module, recycler Recycler, worker taskmgr.WorkerID) {
	defer func() {
		if r := recover(); r != nil {
			finish(ctx, rt, env, recycler, uint32(abi.NOEXEC),
				errors.Internal(errors.PhaseExec, "run_exec panicked", fmt.Errorf("%v", r)))
		}
	}()

	if err := rt.ensureHostModuleBound(ctx); err != nil {
		finishWithError(ctx, rt, env, recycler, errors.Wrap(errors.PhaseHost, errors.KindRegistration, err, "bind loader host module"))
		return
	}

	instance, err := module.Instantiate(ctx, &engine.InstantiateConfig{Name: loader.PrimaryModuleName})
	if err != nil {
		finishWithError(ctx, rt, env, recycler, errors.Instantiation(errors.PhaseExec, err))
		return
	}

	if initFn := instance.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			finishWithError(ctx, rt, env, recycler, errors.Wrap(errors.PhaseExec, errors.KindInstantiation, err, "_initialize failed"))
			return
		}
	}

	bootstrapEnv(rt, env, instance)

	asyncify := sched.NewAsyncify()
	if err := asyncify.Init(instance.Module()); err != nil {
		finishWithError(ctx, rt, env, recycler, errors.Wrap(errors.PhaseExec, errors.KindInstantiation, err, "asyncify init failed"))
		return
	}

	st := &store{
		instance:  instance,
		asyncify:  asyncify,
		scheduler: sched.NewScheduler(asyncify),
	}
	rt.registerScheduler(instance.Module(), st.scheduler)

	callModule(ctx, rt, env, st, nil, recycler, worker)
}

// bootstrapEnv performs the "environment-level bootstrap" of §4.3 step 2:
// in this core, that is binding a per-process Loader (C1/C2) against the
// newly created primary instance, standing in for the broader guest-side
// OS-structure bootstrap the original performs (full WASI fd mapping is
// out of scope per §1 — "the host file system abstraction" is an external
// collaborator, already covered by fsview).
func bootstrapEnv(rt *Runtime, env *Env, instance *engine.Instance) {
	l := loader.NewLoader(rt.Engine, rt.Cache, env.FS, instance)
	env.Loader = l
	rt.registerLoader(instance.Module(), l)
}

// callModule implements §4.3 step 3 / §4.4. rewindResult is nil on the
// very first entry and non-nil on every resumption after a deep sleep.
func callModule(ctx context.Context, rt *Runtime, env *Env, st *store, rewindResult *sched.RewindResult, recycler Recycler, worker taskmgr.WorkerID) {
	env.Thread.MarkRunning()

	startFn := st.instance.ExportedFunction("_start")
	if startFn == nil {
		finishWithError(ctx, rt, env, recycler, errors.NotFound(errors.PhaseExec, "exported function", "_start"))
		return
	}

	result, err := st.scheduler.CallModule(ctx, startFn, nil, rewindResult)
	if err != nil {
		finishWithError(ctx, rt, env, recycler, errors.Wrap(errors.PhaseExec, errors.KindInternal, err, "scheduler call_module failed"))
		return
	}

	switch result.Outcome {
	case sched.OutcomeDeepSleep:
		scheduleContinuation(ctx, rt, env, st, result.DeepSleep, recycler, worker)
		// No on-exit/recycler here: they run when the continuation
		// eventually completes (§4.4 step 3).

	case sched.OutcomeSuccess, sched.OutcomeThreadExit:
		finish(ctx, rt, env, recycler, 0, nil)

	case sched.OutcomeExit:
		rt.taint(TaintReason{Kind: TaintNonZeroExitCode, ExitCode: result.ExitCode})
		finish(ctx, rt, env, recycler, result.ExitCode, result.Err)

	case sched.OutcomeUnknownWasiVersion:
		rt.taint(TaintReason{Kind: TaintUnknownWasiVersion})
		finish(ctx, rt, env, recycler, uint32(abi.NOEXEC), result.Err)

	default: // sched.OutcomeRuntimeError and any unclassified outcome
		rt.taint(TaintReason{Kind: TaintRuntimeError, Cause: result.Err})
		finish(ctx, rt, env, recycler, uint32(abi.NOEXEC), result.Err)
	}
}

// scheduleContinuation implements §4.4: it hands the trigger and a
// one-shot respawn continuation to the task manager's
// resume_wasm_after_poller. The continuation closes over the thread guard
// (env.Thread, guarded by a deferred recover like runExec's), the
// recycler, and the rewind payload, and re-enters call_module on the same
// worker once the trigger resolves.
func scheduleContinuation(ctx context.Context, rt *Runtime, env *Env, st *store, deep *sched.DeepSleep, recycler Recycler, worker taskmgr.WorkerID) {
	rt.Tasks.ResumeWasmAfterPoller(ctx, worker, deep.Trigger, func(contCtx context.Context, result sched.RewindResult, triggerErr error) {
		defer func() {
			if r := recover(); r != nil {
				finish(contCtx, rt, env, recycler, uint32(abi.NOEXEC),
					errors.Internal(errors.PhaseExec, "call_module panicked", fmt.Errorf("%v", r)))
			}
		}()
		if triggerErr != nil {
			// A failing trigger finishes the thread here. A failure to
			// re-enqueue this continuation never reaches this function
			// (taskmgr logs it), and the thread is then left unfinished.
			finishWithError(contCtx, rt, env, recycler, errors.Wrap(errors.PhaseRewind, errors.KindInternal, triggerErr, "deep sleep trigger failed"))
			return
		}
		callModule(contCtx, rt, env, st, &result, recycler, worker)
	})
}

// finish runs on-exit, tears down the per-process loader registration and
// its instance (constructors/destructors ordering, §4.1 "SUPPLEMENTED"),
// invokes the recycler, and marks the thread Finished. It is the single
// path every non-deep-sleep outcome funnels through, so the recycler runs
// exactly once per task activation (§3 invariant, §8 Property 3/4).
func finish(ctx context.Context, rt *Runtime, env *Env, recycler Recycler, exitCode uint32, err error) {
	if env.Loader != nil {
		env.Loader.Registry.CallDestructors(ctx)
		rt.unregisterLoader(env.Loader.Primary.Module())
		rt.unregisterScheduler(env.Loader.Primary.Module())
		if closeErr := env.Loader.Primary.Close(ctx); closeErr != nil {
			Logger().Warn("instance close failed", zap.String("pid", env.ProcessID), zap.Error(closeErr))
		}
	}
	if recycler != nil {
		recycler(ctx)
	}
	env.Thread.MarkFinished(ThreadResult{ExitCode: exitCode, Err: err})
}

// finishWithError is finish with a NOEXEC exit code and a warning log,
// used for every bootstrap-time failure path named in §4.3 step 2
// ("mark thread Finished(err), run on-exit with NOEXEC, invoke recycler").
func finishWithError(ctx context.Context, rt *Runtime, env *Env, recycler Recycler, err error) {
	Logger().Warn("run_exec failed", zap.String("pid", env.ProcessID), zap.Error(err))
	finish(ctx, rt, env, recycler, uint32(abi.NOEXEC), err)
}
