package loader

import (
	"context"
	"testing"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/engine"
	"github.com/wasmproc/core/internal/wasmfixture"
)

type fakeFS struct {
	files map[string][]byte
}

func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, &fsNotFoundError{path: path}
	}
	return data, nil
}

type fsNotFoundError struct{ path string }

func (e *fsNotFoundError) Error() string { return "not found: " + e.path }

func newPrimary(t *testing.T, ctx context.Context, eng *engine.Engine) *engine.Instance {
	t.Helper()
	b := wasmfixture.Builder{MemoryMinPages: 2, ExportMemory: true}
	mod, err := eng.LoadModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	inst, err := mod.Instantiate(ctx, &engine.InstantiateConfig{Name: PrimaryModuleName})
	if err != nil {
		t.Fatalf("Instantiate primary: %v", err)
	}
	return inst
}

func TestLoader_DlOpenAndDlSym(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(ctx)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close(ctx)

	primary := newPrimary(t, ctx, eng)

	// The child imports its memory from the primary (§4.2 step 6), so the
	// bytes dl_sym will read live in the primary's shared memory, not in a
	// data segment baked into the child module.
	want := uint64(0x0011223344556677)
	child := wasmfixture.Builder{
		ImportMemory:   true,
		MemoryMinPages: 2,
		Globals:        []wasmfixture.Global{{Name: "g", Type: wasmfixture.I32, Value: 64}},
	}.Build()

	fs := &fakeFS{files: map[string][]byte{"/lib/side.wasm": child}}
	l := NewLoader(eng, nil, fs, primary)

	mem := primary.Memory()
	if !mem.WriteUint64Le(64, want) {
		t.Fatal("failed to seed shared memory")
	}

	pathBytes := []byte("/lib/side.wasm")
	const pathPtr = 0
	const handlePtr = 256
	if !mem.Write(pathPtr, pathBytes) {
		t.Fatal("failed to write path into primary memory")
	}

	errno := l.dlOpen(ctx, mem, pathPtr, uint32(len(pathBytes)), int32(abi.FlagNow), handlePtr)
	if errno != abi.SUCCESS {
		t.Fatalf("dl_open errno = %v, want SUCCESS", errno)
	}
	handle, ok := mem.ReadUint32Le(handlePtr)
	if !ok || handle == 0 {
		t.Fatalf("dl_open wrote handle = %d, ok=%v", handle, ok)
	}

	symBytes := []byte("g")
	const symPtr = 512
	const valuePtr = 520
	mem.Write(symPtr, symBytes)

	errno = l.dlSym(mem, handle, symPtr, uint32(len(symBytes)), valuePtr)
	if errno != abi.SUCCESS {
		t.Fatalf("dl_sym errno = %v, want SUCCESS", errno)
	}
	got, ok := mem.ReadUint64Le(valuePtr)
	if !ok || got != want {
		t.Errorf("dl_sym wrote %x, ok=%v; want %x", got, ok, want)
	}
}

func TestLoader_DlOpenCtorFailureReturnsInvalButKeepsHandle(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(ctx)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close(ctx)

	primary := newPrimary(t, ctx, eng)

	child := wasmfixture.Builder{
		ImportMemory:   true,
		MemoryMinPages: 2,
		Funcs:          []wasmfixture.Func{{Name: "__wasm_call_ctors", Body: []byte{0x00}}}, // unreachable
	}.Build()

	fs := &fakeFS{files: map[string][]byte{"/lib/side.wasm": child}}
	l := NewLoader(eng, nil, fs, primary)

	mem := primary.Memory()
	pathBytes := []byte("/lib/side.wasm")
	const pathPtr = 0
	const handlePtr = 256
	mem.Write(pathPtr, pathBytes)

	errno := l.dlOpen(ctx, mem, pathPtr, uint32(len(pathBytes)), int32(abi.FlagNow), handlePtr)
	if errno != abi.INVAL {
		t.Fatalf("dl_open errno = %v, want INVAL (constructor trapped)", errno)
	}

	handle, ok := mem.ReadUint32Le(handlePtr)
	if !ok || handle == 0 {
		t.Fatalf("dl_open wrote handle = %d, ok=%v", handle, ok)
	}
	if _, ok := l.Registry.Get(Handle(handle)); !ok {
		t.Error("expected handle to remain registered despite the constructor failure (§9: not rolled back)")
	}
}

func TestLoader_DlOpenUnsupportedFlag(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(ctx)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close(ctx)

	primary := newPrimary(t, ctx, eng)
	l := NewLoader(eng, nil, &fakeFS{files: map[string][]byte{}}, primary)

	mem := primary.Memory()
	pathBytes := []byte("/lib/side.wasm")
	mem.Write(0, pathBytes)

	const lazyFlag = 0
	errno := l.dlOpen(ctx, mem, 0, uint32(len(pathBytes)), lazyFlag, 256)
	if errno != abi.NOTSUP {
		t.Errorf("dl_open errno = %v, want NOTSUP", errno)
	}
}

func TestLoader_DlCloseAndDlErrorAreStubs(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(ctx)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	defer eng.Close(ctx)

	primary := newPrimary(t, ctx, eng)
	l := NewLoader(eng, nil, &fakeFS{files: map[string][]byte{}}, primary)

	if errno := l.dlClose(99); errno != abi.SUCCESS {
		t.Errorf("dl_close errno = %v, want SUCCESS", errno)
	}
	if errno := l.dlError(primary.Memory(), 0, 0, 600); errno != abi.SUCCESS {
		t.Errorf("dl_error errno = %v, want SUCCESS", errno)
	}
}
