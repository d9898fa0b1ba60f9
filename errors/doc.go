// Package errors provides structured error types for the runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes a field path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindInvalidData).
//		Detail("compile child module").
//		Cause(compileErr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseLoader, "handle", "7")
//	err := errors.OutOfBounds(errors.PhaseLoader, offset, 8)
//
// All errors implement the standard error interface and support errors.Is/As.
// Guest errno values (package abi) are a distinct, narrower wire type;
// conversion from *errors.Error to an errno happens only at the guest-ABI
// syscall boundary (package loader, package execproc), never inside the core.
package errors
