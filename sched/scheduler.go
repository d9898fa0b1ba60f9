package sched

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
)

// RewindState is the opaque payload describing how to resume a suspended
// guest (§3): a memory-stack snapshot, a rewind-stack region, store-side
// data, and an address-width flag. Valid only for the module that produced
// it.
type RewindState struct {
	MemoryStack []byte
	RewindStack []byte
	StoreData   []byte
	Is64        bool
}

// RewindResult is the value a resumed guest observes as the return of the
// call that suspended it (§3). Empty on the very first entry.
type RewindResult struct {
	Value uint64
	Valid bool
}

// Trigger is the asynchronous waitable a DeepSleep names; it resolves with
// the value delivered to the resumed guest (§4.4).
type Trigger interface {
	Wait(ctx context.Context) (uint64, error)
}

// DeepSleep is the payload `_start` yields when it cooperatively traps out
// (§4.4, §GLOSSARY "Deep sleep").
type DeepSleep struct {
	Trigger Trigger
	Rewind  RewindState
}

// Outcome classifies a call_module invocation's result (§4.3).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeExit
	OutcomeThreadExit
	OutcomeDeepSleep
	OutcomeUnknownWasiVersion
	OutcomeRuntimeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExit:
		return "exit"
	case OutcomeThreadExit:
		return "thread_exit"
	case OutcomeDeepSleep:
		return "deep_sleep"
	case OutcomeUnknownWasiVersion:
		return "unknown_wasi_version"
	case OutcomeRuntimeError:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// Result is call_module's classified outcome.
type Result struct {
	Outcome   Outcome
	ExitCode  uint32
	DeepSleep *DeepSleep
	Err       error
}

// threadExitCode is the exit code wazero reports for a *sys.ExitError
// raised by an exit-style host call with code 0. §4.3 treats an explicit
// Exit(0) the same as success, so classify() maps it straight to
// OutcomeSuccess; a true "thread_exit" (no code at all) is instead
// signaled via the distinct ThreadExit sentinel error below.
const threadExitCode uint32 = 0

// UnknownWasiVersion is a sentinel error a guest-ABI preamble can return
// to signal §4.3's "UnknownWasiVersion" classification.
type UnknownWasiVersion struct{}

func (UnknownWasiVersion) Error() string { return "unknown wasi version" }

// ThreadExit is a sentinel error distinguishing a clean thread_exit from a
// coded Exit(0), since wazero surfaces both as *sys.ExitError.
type ThreadExit struct{}

func (ThreadExit) Error() string { return "thread exit" }

func classify(ctx context.Context, async *Asyncify, pending *DeepSleep, callErr error) Result {
	if async.IsUnwinding(ctx) {
		if pending == nil {
			return Result{Outcome: OutcomeRuntimeError, Err: errNoPendingDeepSleep}
		}
		return Result{Outcome: OutcomeDeepSleep, DeepSleep: pending}
	}

	if callErr == nil {
		return Result{Outcome: OutcomeSuccess}
	}

	var exitErr *sys.ExitError
	if errors.As(callErr, &exitErr) {
		if exitErr.ExitCode() == threadExitCode {
			return Result{Outcome: OutcomeSuccess}
		}
		return Result{Outcome: OutcomeExit, ExitCode: exitErr.ExitCode(), Err: callErr}
	}

	var threadExit ThreadExit
	if errors.As(callErr, &threadExit) {
		return Result{Outcome: OutcomeThreadExit}
	}

	var unknownVersion UnknownWasiVersion
	if errors.As(callErr, &unknownVersion) {
		return Result{Outcome: OutcomeUnknownWasiVersion, Err: callErr}
	}

	return Result{Outcome: OutcomeRuntimeError, Err: callErr}
}

// Scheduler drives call_module: it invokes `_start` (or a rewind
// continuation of it), and classifies the outcome per §4.3/§4.4. It is the
// generalization of the Binaryen asyncify step-loop to this spec's
// DeepSleep/RewindState vocabulary.
type Scheduler struct {
	asyncify *Asyncify
	fn       api.Function
	args     []uint64
	pending  *DeepSleep
	// delivered is the rewind result handed to the current re-entry of
	// CallModule, returned by Resume.
	delivered *RewindResult
}

// NewScheduler creates a Scheduler bound to one instance's Asyncify state.
func NewScheduler(asyncify *Asyncify) *Scheduler {
	return &Scheduler{asyncify: asyncify}
}

// SetPending registers the DeepSleep a guest-ABI call is requesting.
// Called by the host function implementing the suspension side (e.g. a
// blocking poll) while the guest call that triggered it is still on the
// stack.
func (s *Scheduler) SetPending(deep *DeepSleep) {
	s.pending = deep
}

// PendingResume reports whether the scheduler is currently rewinding —
// i.e., whether a host function invoked during this call should deliver a
// resumed result instead of registering a new suspension.
func (s *Scheduler) PendingResume(ctx context.Context) bool {
	return s.asyncify.IsRewinding(ctx)
}

// Suspend is called by a guest-ABI host function to request deep sleep: it
// records deep as pending and flips the asyncify state to Unwinding.
func (s *Scheduler) Suspend(ctx context.Context, deep *DeepSleep) error {
	s.SetPending(deep)
	return s.asyncify.StartUnwind(ctx)
}

// Resume is called by a guest-ABI host function, during a rewind-driven
// re-entry, to retrieve the delivered result and return asyncify to
// Normal. The delivered result is the one passed to CallModule; result is
// returned unchanged only when CallModule was given none.
func (s *Scheduler) Resume(ctx context.Context, result RewindResult) (RewindResult, error) {
	if err := s.asyncify.StopRewind(ctx); err != nil {
		return RewindResult{}, err
	}
	s.pending = nil
	if s.delivered != nil {
		result = *s.delivered
		s.delivered = nil
	}
	return result, nil
}

// CallModule runs fn (an entrypoint export, typically `_start`) with args,
// applying rewindResult if this is a resumed re-entry, and classifies the
// outcome (§4.3 call_module).
func (s *Scheduler) CallModule(ctx context.Context, fn api.Function, args []uint64, rewindResult *RewindResult) (Result, error) {
	s.fn = fn
	s.args = args

	if rewindResult != nil {
		delivered := *rewindResult
		s.delivered = &delivered
		if err := s.asyncify.StartRewind(ctx); err != nil {
			return Result{Outcome: OutcomeRuntimeError, Err: err}, err
		}
	} else {
		s.delivered = nil
		s.asyncify.ResetStack()
	}

	_, callErr := fn.Call(ctx, args...)
	result := classify(ctx, s.asyncify, s.pending, callErr)
	if result.Outcome == OutcomeDeepSleep {
		s.pending = nil
	}
	return result, nil
}

var errNoPendingDeepSleep = UnwindWithoutPendingError{}

// UnwindWithoutPendingError signals an internal inconsistency: asyncify
// reported Unwinding but no DeepSleep was registered via Suspend.
type UnwindWithoutPendingError struct{}

func (UnwindWithoutPendingError) Error() string {
	return "sched: asyncify unwinding with no pending deep sleep"
}
