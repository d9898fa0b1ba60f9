package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred.
type Phase string

const (
	PhaseSpawn  Phase = "spawn"  // package union, compile, host-thread dispatch
	PhaseLoad   Phase = "load"   // dl_open: read, compile, instantiate a child module
	PhaseLoader Phase = "loader" // C1 registry: register/lookup/close/dtors
	PhaseExec   Phase = "exec"   // C3 bootstrap and _start invocation
	PhaseRewind Phase = "rewind" // C4 deep-sleep capture/apply
	PhaseTask   Phase = "task"   // task manager submission/scheduling
	PhaseHost   Phase = "host"   // guest-ABI host function registration
)

// Kind categorizes the error.
type Kind string

const (
	KindInvalidData    Kind = "invalid_data"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindUnsupported    Kind = "unsupported"
	KindIO             Kind = "io"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindInternal       Kind = "internal"
)

// Error is the structured error type used throughout the runtime.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns.

// NotInitialized creates a not-initialized error.
func NotInitialized(phase Phase, what string) *Error {
	return &Error{Phase: phase, Kind: KindNotInitialized, Detail: fmt.Sprintf("%s not initialized", what)}
}

// NotFound creates a not-found error.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{Phase: phase, Kind: KindNotFound, Detail: fmt.Sprintf("%s %q not found", what, name)}
}

// InvalidInput creates an invalid-input error.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{Phase: phase, Kind: KindInvalidInput, Detail: detail}
}

// InvalidUTF8 creates an invalid-UTF-8 error, previewing the offending bytes.
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{Phase: phase, Kind: KindInvalidUTF8, Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview)}
}

// OutOfBounds creates an out-of-bounds memory access error.
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d length %d exceeds linear memory", offset, length),
	}
}

// Unsupported creates an unsupported-operation error.
func Unsupported(phase Phase, what string) *Error {
	return &Error{Phase: phase, Kind: KindUnsupported, Detail: what}
}

// IO wraps a host filesystem failure.
func IO(phase Phase, detail string, cause error) *Error {
	return &Error{Phase: phase, Kind: KindIO, Detail: detail, Cause: cause}
}

// Registration creates a host-function registration error.
func Registration(namespace, name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s::%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates a module instantiation error.
func Instantiation(phase Phase, cause error) *Error {
	return &Error{Phase: phase, Kind: KindInstantiation, Detail: "instantiate module", Cause: cause}
}

// Load creates a module-loading/compile error.
func Load(detail string, cause error) *Error {
	return &Error{Phase: PhaseLoad, Kind: KindInvalidData, Detail: detail, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// Internal wraps an unexpected host-side failure that has no guest-visible cause.
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{Phase: phase, Kind: KindInternal, Detail: detail, Cause: cause}
}
