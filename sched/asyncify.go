// Package sched implements the Deep-Sleep / Rewind Scheduler (C4): the
// cooperative suspension protocol that lets a guest thread trap out of
// `_start`, hand a trigger+rewind payload to the task manager, and be
// re-entered later with the trigger's result.
//
// The state machine is the Binaryen asyncify protocol (as produced by
// `wasm-opt --asyncify`, an external build-time concern per §1's
// out-of-scope "Wasm compiler/engine"): Normal / Unwinding / Rewinding,
// driven by the optional guest exports asyncify_get_state /
// asyncify_start_unwind / asyncify_stop_unwind / asyncify_start_rewind /
// asyncify_stop_rewind. A guest module that doesn't export these still
// participates correctly: the state then lives purely host-side, set by
// the guest-ABI call that requests suspension, and `_start` simply runs to
// completion every time it's invoked — the scheduler reads the host-side
// state after the call returns regardless of whether the guest bytecode
// itself was instrumented to stop early.
package sched

import (
	"context"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
)

// State mirrors the Binaryen asyncify states.
type State int32

const (
	StateNormal State = iota
	StateUnwinding
	StateRewinding
)

// AsyncifyDataAddr and AsyncifyDefaultStackSize are the conventional
// asyncify data-structure layout: [0:4] stack pointer, [4:8] stack end,
// [8:8+stackSize] stack bytes, all relative to dataAddr.
const (
	AsyncifyDataAddr        uint32 = 16
	AsyncifyDefaultStackSize uint32 = 1024
)

// Asyncify wraps one instance's (possibly absent) asyncify exports and
// tracks suspension state for it.
type Asyncify struct {
	exports struct {
		getState    api.Function
		startUnwind api.Function
		stopUnwind  api.Function
		startRewind api.Function
		stopRewind  api.Function
	}
	memory    api.Memory
	state     int32
	dataAddr  uint32
	stackSize uint32
}

// NewAsyncify creates an Asyncify with the conventional default layout.
func NewAsyncify() *Asyncify {
	return &Asyncify{dataAddr: AsyncifyDataAddr, stackSize: AsyncifyDefaultStackSize}
}

// SetStackSize overrides the asyncify stack region size.
func (a *Asyncify) SetStackSize(size uint32) { a.stackSize = size }

// SetDataAddr overrides the asyncify data-structure address.
func (a *Asyncify) SetDataAddr(addr uint32) { a.dataAddr = addr }

// Init binds to mod's asyncify exports, if any, and prepares the stack
// region in guest memory when exports are present. A module that exports
// none of the asyncify functions is left in host-only mode: Init succeeds
// and every state transition below only touches Asyncify's own atomic,
// never touching guest memory.
func (a *Asyncify) Init(mod api.Module) error {
	a.memory = mod.Memory()

	a.exports.getState = mod.ExportedFunction("asyncify_get_state")
	a.exports.startUnwind = mod.ExportedFunction("asyncify_start_unwind")
	a.exports.stopUnwind = mod.ExportedFunction("asyncify_stop_unwind")
	a.exports.startRewind = mod.ExportedFunction("asyncify_start_rewind")
	a.exports.stopRewind = mod.ExportedFunction("asyncify_stop_rewind")

	if a.exports.getState == nil || a.memory == nil {
		return nil // host-only mode
	}

	stackPtr := a.dataAddr + 8
	stackEnd := stackPtr + a.stackSize
	a.memory.WriteUint32Le(a.dataAddr, stackPtr)
	a.memory.WriteUint32Le(a.dataAddr+4, stackEnd)
	return nil
}

// Instrumented reports whether mod actually exports the asyncify functions
// (as opposed to running in host-only mode).
func (a *Asyncify) Instrumented() bool {
	return a.exports.getState != nil
}

func (a *Asyncify) State() State {
	return State(atomic.LoadInt32(&a.state))
}

func (a *Asyncify) IsNormal(ctx context.Context) bool    { return a.State() == StateNormal }
func (a *Asyncify) IsUnwinding(ctx context.Context) bool { return a.State() == StateUnwinding }
func (a *Asyncify) IsRewinding(ctx context.Context) bool { return a.State() == StateRewinding }

func (a *Asyncify) StartUnwind(ctx context.Context) error {
	if a.exports.startUnwind != nil {
		if _, err := a.exports.startUnwind.Call(ctx, uint64(a.dataAddr)); err != nil {
			return err
		}
	}
	atomic.StoreInt32(&a.state, int32(StateUnwinding))
	return nil
}

func (a *Asyncify) StopUnwind(ctx context.Context) error {
	if a.exports.stopUnwind != nil {
		if _, err := a.exports.stopUnwind.Call(ctx); err != nil {
			return err
		}
	}
	atomic.StoreInt32(&a.state, int32(StateNormal))
	return nil
}

func (a *Asyncify) StartRewind(ctx context.Context) error {
	if a.exports.startRewind != nil {
		if _, err := a.exports.startRewind.Call(ctx, uint64(a.dataAddr)); err != nil {
			return err
		}
	}
	atomic.StoreInt32(&a.state, int32(StateRewinding))
	return nil
}

func (a *Asyncify) StopRewind(ctx context.Context) error {
	if a.exports.stopRewind != nil {
		if _, err := a.exports.stopRewind.Call(ctx); err != nil {
			return err
		}
	}
	atomic.StoreInt32(&a.state, int32(StateNormal))
	return nil
}

// ResetStack rewinds the stack pointer to the bottom of the asyncify stack
// region, done before every fresh (non-rewind) entry into a pinned store.
func (a *Asyncify) ResetStack() {
	if a.memory == nil || !a.Instrumented() {
		return
	}
	a.memory.WriteUint32Le(a.dataAddr, a.dataAddr+8)
}
