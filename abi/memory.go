package abi

import (
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
)

// ReadString reads a UTF-8 string from guest linear memory at ptr/len.
// Returns (s, true) on success; (_, false) on an out-of-bounds read or
// malformed UTF-8, matching §4.2 step 3's "malformed UTF-8 or OOB returns INVAL".
func ReadString(mem api.Memory, ptr, length uint32) (string, bool) {
	data, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}
	// Copy: the backing bytes alias guest memory and may be mutated or
	// grown out from under the Go string otherwise.
	buf := make([]byte, len(data))
	copy(buf, data)
	return string(buf), true
}

// WriteU32 writes a little-endian u32 to guest memory at ptr.
func WriteU32(mem api.Memory, ptr, value uint32) bool {
	return mem.WriteUint32Le(ptr, value)
}

// WriteU64 writes a little-endian u64 to guest memory at ptr.
func WriteU64(mem api.Memory, ptr uint32, value uint64) bool {
	return mem.WriteUint64Le(ptr, value)
}

// ReadAligned reads an integer at byte offset O from shared linear memory,
// choosing the read width by alignment and bounds per §4.1 lookup step 3:
// 8 bytes if O%8==0 and O+8<=size; else 4 bytes if O%4==0 and O+4<=size;
// else 1 byte if O+1<=size; else not ok. The result is zero-extended to 64 bits.
func ReadAligned(mem api.Memory, offset uint64) (uint64, bool) {
	size := uint64(mem.Size())

	if offset%8 == 0 && offset+8 <= size {
		v, ok := mem.ReadUint64Le(uint32(offset))
		return v, ok
	}
	if offset%4 == 0 && offset+4 <= size {
		v, ok := mem.ReadUint32Le(uint32(offset))
		return uint64(v), ok
	}
	if offset+1 <= size {
		v, ok := mem.ReadByte(uint32(offset))
		return uint64(v), ok
	}
	return 0, false
}
