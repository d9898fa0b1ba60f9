// Package wasmfixture hand-encodes minimal Wasm binary modules for tests.
// No library in the retrieval pack exists purely to author tiny synthetic
// Wasm modules (the teacher's own wasm/ package decodes and validates
// general Wasm bytecode, which is a different problem and far larger than
// this need); this package is the one place in the module that works
// directly against the binary format instead of through a third-party
// library, and exists only to build fixtures exercised by other packages'
// tests.
package wasmfixture

import "encoding/binary"

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	valTypeI32 = 0x7F
	valTypeI64 = 0x7E

	exportKindFunc   = 0x00
	exportKindMemory = 0x02
	exportKindGlobal = 0x03
)

// GlobalType selects the value type of a fixture global.
type GlobalType byte

const (
	I32 GlobalType = valTypeI32
	I64 GlobalType = valTypeI64
)

// Global describes one exported, immutable global.
type Global struct {
	Name  string
	Type  GlobalType
	Value int64
}

// Func describes one exported function. Body holds raw instruction bytes
// (not including the trailing 0x0B end opcode, appended automatically); a
// nil Body produces an empty function, enough to exercise "is this export
// present and callable" without needing to compute anything
// (__wasm_call_ctors/__wasm_call_dtors fixtures).
type Func struct {
	Name string
	Body []byte
}

// ImportFunc describes one nullary imported function, occupying the low
// end of the function index space (before any Funcs). Used to give a
// fixture's exported functions something to `call` out to the host with,
// e.g. a `_start` that invokes an imported "request_deep_sleep".
type ImportFunc struct {
	Module string
	Name   string
}

// Instruction-building helpers for Func.Body. These cover just enough of
// the binary format to write the straight-line calls this package's
// fixtures need.

// Call encodes a `call` instruction to the function at funcIdx (imports
// occupy indices [0, len(ImportFuncs)), then Funcs in order).
func Call(funcIdx uint32) []byte {
	return append([]byte{0x10}, uleb128(funcIdx)...)
}

// Drop encodes a `drop` instruction.
func Drop() []byte { return []byte{0x1A} }


// Data describes one active data segment loaded at a constant offset into
// the module's own memory (ignored when ImportMemory is set, since an
// imported memory is owned by whoever exports it).
type Data struct {
	Offset uint32
	Bytes  []byte
}

// Builder assembles a minimal module.
type Builder struct {
	// ImportMemory imports "env"."memory" instead of defining it, matching
	// the shape dl_open expects of a dynamically loaded child.
	ImportMemory bool
	// MemoryMinPages is the minimum page count of a defined (non-imported)
	// memory, or the value asserted if ImportMemory is set.
	MemoryMinPages uint32
	ExportMemory   bool
	Globals        []Global
	ImportFuncs    []ImportFunc
	Funcs          []Func
	Data           []Data
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7F)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func name(s string) []byte {
	out := uleb128(uint32(len(s)))
	return append(out, []byte(s)...)
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

func vec(count int, items [][]byte) []byte {
	out := uleb128(uint32(count))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// Build assembles the module into raw Wasm bytes.
func (b Builder) Build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

	// Type section: one nullary type, shared by every defined function.
	fnType := []byte{0x60, 0x00, 0x00} // func, 0 params, 0 results
	out = append(out, section(sectionType, vec(1, [][]byte{fnType}))...)

	var imports [][]byte
	if b.ImportMemory {
		memType := append([]byte{0x00}, uleb128(b.MemoryMinPages)...) // limits: min only
		imp := append(name("env"), name("memory")...)
		imp = append(imp, 0x02) // import kind: memory
		imp = append(imp, memType...)
		imports = append(imports, imp)
	}
	for _, f := range b.ImportFuncs {
		imp := append(name(f.Module), name(f.Name)...)
		imp = append(imp, 0x00) // import kind: func
		imp = append(imp, uleb128(0)...) // type index 0 (nullary)
		imports = append(imports, imp)
	}
	if len(imports) > 0 {
		out = append(out, section(sectionImport, vec(len(imports), imports))...)
	}

	// Function section: one entry per Func, all of type index 0.
	if len(b.Funcs) > 0 {
		items := make([][]byte, len(b.Funcs))
		for i := range b.Funcs {
			items[i] = uleb128(0)
		}
		out = append(out, section(sectionFunction, vec(len(b.Funcs), items))...)
	}

	if !b.ImportMemory {
		memType := append([]byte{0x00}, uleb128(b.MemoryMinPages)...)
		out = append(out, section(sectionMemory, vec(1, [][]byte{memType}))...)
	}

	if len(b.Globals) > 0 {
		items := make([][]byte, len(b.Globals))
		for i, g := range b.Globals {
			entry := []byte{byte(g.Type), 0x00} // immutable
			switch g.Type {
			case I32:
				entry = append(entry, 0x41) // i32.const
				entry = append(entry, sleb128(g.Value)...)
			case I64:
				entry = append(entry, 0x42) // i64.const
				entry = append(entry, sleb128(g.Value)...)
			}
			entry = append(entry, 0x0B) // end
			items[i] = entry
		}
		out = append(out, section(sectionGlobal, vec(len(b.Globals), items))...)
	}

	var exports [][]byte
	if b.ExportMemory {
		e := append(name("memory"), exportKindMemory, 0x00)
		exports = append(exports, e)
	}
	for i, g := range b.Globals {
		e := append(name(g.Name), exportKindGlobal)
		e = append(e, uleb128(uint32(i))...)
		exports = append(exports, e)
	}
	for i, f := range b.Funcs {
		e := append(name(f.Name), exportKindFunc)
		e = append(e, uleb128(uint32(len(b.ImportFuncs)+i))...)
		exports = append(exports, e)
	}
	if len(exports) > 0 {
		out = append(out, section(sectionExport, vec(len(exports), exports))...)
	}

	if len(b.Funcs) > 0 {
		items := make([][]byte, len(b.Funcs))
		for i, f := range b.Funcs {
			body := append(append([]byte{}, f.Body...), 0x0B) // + end
			locals := []byte{0x00}                            // 0 local-declaration groups
			entry := uleb128(uint32(len(locals) + len(body)))
			entry = append(entry, locals...)
			entry = append(entry, body...)
			items[i] = entry
		}
		out = append(out, section(sectionCode, vec(len(b.Funcs), items))...)
	}

	if !b.ImportMemory && len(b.Data) > 0 {
		items := make([][]byte, len(b.Data))
		for i, d := range b.Data {
			entry := uleb128(0) // memory index 0
			entry = append(entry, 0x41)
			entry = append(entry, sleb128(int64(d.Offset))...)
			entry = append(entry, 0x0B)
			entry = append(entry, uleb128(uint32(len(d.Bytes)))...)
			entry = append(entry, d.Bytes...)
			items[i] = entry
		}
		out = append(out, section(sectionData, vec(len(b.Data), items))...)
	}

	return out
}

// LittleEndianBytes encodes v as 8 little-endian bytes, a convenience for
// building Data segments matching scenario S4's "bytes ... little-endian".
func LittleEndianBytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
