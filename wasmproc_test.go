package wasmproc_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wasmproc/core"
	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/binpkg"
	"github.com/wasmproc/core/internal/wasmfixture"
)

func newRuntime(t *testing.T, ctx context.Context) *wasmproc.Runtime {
	t.Helper()
	rt, err := wasmproc.New(ctx, &wasmproc.Config{Workers: 2, QueueDepth: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })
	return rt
}

func simpleAtom() []byte {
	b := wasmfixture.Builder{
		MemoryMinPages: 1,
		ExportMemory:   true,
		Funcs:          []wasmfixture.Func{{Name: "_start"}},
	}
	return b.Build()
}

func TestRuntime_SpawnEntrypoint(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, ctx)

	pkg, err := binpkg.New([]binpkg.Command{
		{Name: "main", Atom: simpleAtom(), Entrypoint: true},
	})
	if err != nil {
		t.Fatalf("binpkg.New: %v", err)
	}

	var recycled int32
	thread, err := rt.Spawn(ctx, pkg, "", func(context.Context) { atomic.AddInt32(&recycled, 1) })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	joinCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	result, err := thread.Join(joinCtx)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.ExitCode != 0 || result.Err != nil {
		t.Fatalf("result = %+v, want exit 0 no error", result)
	}
	if got := atomic.LoadInt32(&recycled); got != 1 {
		t.Fatalf("recycler ran %d times, want 1", got)
	}
}

func TestRuntime_SpawnNamedCommand(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, ctx)

	pkg, err := binpkg.New([]binpkg.Command{
		{Name: "main", Atom: simpleAtom(), Entrypoint: true},
		{Name: "side", Atom: simpleAtom()},
	})
	if err != nil {
		t.Fatalf("binpkg.New: %v", err)
	}

	thread, err := rt.Spawn(ctx, pkg, "side", nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	joinCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	result, err := thread.Join(joinCtx)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.ExitCode != 0 || result.Err != nil {
		t.Fatalf("result = %+v, want exit 0 no error", result)
	}
}

func TestRuntime_SpawnMissingEntrypoint(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, ctx)

	pkg, err := binpkg.New([]binpkg.Command{
		{Name: "main", Atom: simpleAtom()},
	})
	if err != nil {
		t.Fatalf("binpkg.New: %v", err)
	}

	thread, err := rt.Spawn(ctx, pkg, "", nil)
	if err == nil {
		t.Fatal("expected a SpawnError for a package with no entrypoint")
	}
	spawnErr, ok := err.(*wasmproc.SpawnError)
	if !ok || spawnErr.Kind != wasmproc.SpawnMissingEntrypoint {
		t.Fatalf("err = %v, want *SpawnError{Kind: SpawnMissingEntrypoint}", err)
	}

	// Spawn-time failures still yield an already-Finished thread handle
	// (§7), never a nil one.
	result, finished := thread.Poll()
	if !finished {
		t.Fatal("expected the thread handle to already be Finished")
	}
	if result.ExitCode != uint32(abi.NOEXEC) {
		t.Fatalf("exit code = %d, want NOEXEC", result.ExitCode)
	}
}

func TestRuntime_SpawnUnknownCommand(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, ctx)

	pkg, err := binpkg.New([]binpkg.Command{
		{Name: "main", Atom: simpleAtom(), Entrypoint: true},
	})
	if err != nil {
		t.Fatalf("binpkg.New: %v", err)
	}

	_, err = rt.Spawn(ctx, pkg, "does-not-exist", nil)
	if err == nil {
		t.Fatal("expected a SpawnError for an unknown command name")
	}
	spawnErr, ok := err.(*wasmproc.SpawnError)
	if !ok || spawnErr.Kind != wasmproc.SpawnMissingEntrypoint {
		t.Fatalf("err = %v, want *SpawnError{Kind: SpawnMissingEntrypoint}", err)
	}
}
