// Package abi implements the wire-level guest ABI surface: the errno
// enumeration returned from guest syscalls and the guest-pointer marshaling
// helpers shared by the loader and process-execution syscalls.
package abi

// Errno is the numeric result of a guest-ABI syscall, mirrored into the
// guest's return register. It is deliberately narrower than *errors.Error:
// only a syscall boundary converts a rich internal error into one of these.
type Errno uint32

const (
	// SUCCESS indicates the call completed normally.
	SUCCESS Errno = 0
	// INVAL indicates a malformed argument: a bad pointer, invalid UTF-8,
	// an unresolvable symbol, or a module that failed to compile/instantiate.
	INVAL Errno = 1
	// IO indicates a host filesystem failure while resolving a path.
	IO Errno = 2
	// NOTSUP indicates an unsupported flag or operation.
	NOTSUP Errno = 3
	// NOEXEC indicates the guest process could not be executed at all
	// (missing _start, a crash with no extractable exit code).
	NOEXEC Errno = 4
)

func (e Errno) String() string {
	switch e {
	case SUCCESS:
		return "SUCCESS"
	case INVAL:
		return "INVAL"
	case IO:
		return "IO"
	case NOTSUP:
		return "NOTSUP"
	case NOEXEC:
		return "NOEXEC"
	default:
		return "UNKNOWN"
	}
}

// OpenFlag is the guest-visible flags argument to dl_open.
type OpenFlag int32

const (
	// FlagNow is the only flag value §4.2 accepts; any other value returns NOTSUP.
	FlagNow OpenFlag = 1
)
