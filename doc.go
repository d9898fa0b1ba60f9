// Package wasmproc is a WebAssembly process-execution runtime core: it
// bootstraps a compiled guest module into a running process, invokes its
// entry functions, mediates a cooperative deep-sleep/rewind suspension
// protocol across host worker threads, and implements a guest-visible
// dynamic loader (open/lookup/close/error) for additional modules sharing
// the same linear memory.
//
// # Architecture
//
//	wasmproc/          Root package: Runtime.Spawn, SpawnError
//	├── binpkg/        Binary Package data model (§3)
//	├── engine/        wazero integration: compile, instantiate, module cache
//	├── abi/           Guest errno and linear-memory marshaling
//	├── loader/        Dynamic-Loader State (C1) and guest-ABI syscalls (C2)
//	├── sched/         Asyncify state machine and deep-sleep scheduler (C4)
//	├── execproc/      Module Bootstrap & Invocation (C3)
//	├── taskmgr/       Pinned host-worker pool and continuation scheduling
//	├── fsview/        Host file-system abstraction, package overlay
//	├── errors/        Structured error types
//	└── runtimemetrics/ Prometheus counters for taint and completion events
//
// # Quick start
//
//	rt, err := wasmproc.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	pkg, _ := binpkg.New([]binpkg.Command{
//	    {Name: "main", Atom: wasmBytes, Entrypoint: true},
//	})
//
//	thread, err := rt.Spawn(ctx, pkg, "", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := thread.Join(ctx)
//
// # Thread safety
//
// Runtime is safe for concurrent Spawn calls. A spawned process's Instance
// is pinned to the host worker taskmgr assigned it and must never be
// touched from another goroutine; Runtime and taskmgr already enforce this
// by construction.
package wasmproc
