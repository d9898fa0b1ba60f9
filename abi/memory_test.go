package abi_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wasmproc/core/abi"
	"github.com/wasmproc/core/internal/wasmfixture"
)

func TestReadString(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	b := wasmfixture.Builder{
		MemoryMinPages: 1,
		ExportMemory:   true,
		Data: []wasmfixture.Data{
			{Offset: 0, Bytes: []byte("hello")},
			{Offset: 16, Bytes: []byte{0xFF, 0xFE}}, // invalid UTF-8
		},
	}
	compiled, err := rt.CompileModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("m"))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	mem := mod.Memory()

	s, ok := abi.ReadString(mem, 0, 5)
	if !ok || s != "hello" {
		t.Errorf("ReadString(0,5) = %q, %v; want hello, true", s, ok)
	}

	if _, ok := abi.ReadString(mem, 16, 2); ok {
		t.Error("expected invalid UTF-8 to fail")
	}

	if _, ok := abi.ReadString(mem, mem.Size(), 1); ok {
		t.Error("expected out-of-bounds read to fail")
	}
}

func TestWriteU32AndU64(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	b := wasmfixture.Builder{MemoryMinPages: 1, ExportMemory: true}
	compiled, err := rt.CompileModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("m"))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	mem := mod.Memory()

	if !abi.WriteU32(mem, 0, 0xDEADBEEF) {
		t.Fatal("WriteU32 failed")
	}
	got, ok := mem.ReadUint32Le(0)
	if !ok || got != 0xDEADBEEF {
		t.Errorf("got %x, ok=%v", got, ok)
	}

	if !abi.WriteU64(mem, 8, 0x0011223344556677) {
		t.Fatal("WriteU64 failed")
	}
	got64, ok := mem.ReadUint64Le(8)
	if !ok || got64 != 0x0011223344556677 {
		t.Errorf("got %x, ok=%v", got64, ok)
	}

	if abi.WriteU32(mem, mem.Size(), 1) {
		t.Error("expected out-of-bounds write to fail")
	}
}

func TestReadAligned(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	want := uint64(0x0011223344556677)
	b := wasmfixture.Builder{
		MemoryMinPages: 1,
		ExportMemory:   true,
		Data: []wasmfixture.Data{
			{Offset: 64, Bytes: wasmfixture.LittleEndianBytes(want)},
			{Offset: 100, Bytes: []byte{0x42}},
		},
	}
	compiled, err := rt.CompileModule(ctx, b.Build())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("m"))
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	mem := mod.Memory()

	got, ok := abi.ReadAligned(mem, 64)
	if !ok || got != want {
		t.Errorf("ReadAligned(64) = %x, %v; want %x, true", got, ok, want)
	}

	got1, ok := abi.ReadAligned(mem, 100)
	if !ok || got1 != 0x42 {
		t.Errorf("ReadAligned(100) = %x, %v; want 0x42, true", got1, ok)
	}

	if _, ok := abi.ReadAligned(mem, uint64(mem.Size())+1); ok {
		t.Error("expected out-of-bounds offset to fail")
	}
}
