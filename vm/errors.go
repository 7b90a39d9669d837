package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is.
var (
	ErrRuntime = errors.New("runtime error")
	ErrHostAPI = errors.New("host api error")
	ErrCompile = errors.New("compile error")
)

// ---------------------------------------------------------------------------
// RuntimeError
// ---------------------------------------------------------------------------

// RuntimeErrorKind classifies script-level failures.
type RuntimeErrorKind uint8

const (
	UndefinedVariable RuntimeErrorKind = iota + 1
	UndefinedProperty
	TypeMismatch
	ArityMismatch
	NotCallable
	BadSuperclass
	StackOverflow
	IndexOutOfRange
	ModuleNotFound
	FiberError
	NativeError
)

var runtimeKindNames = [...]string{
	UndefinedVariable: "undefined variable",
	UndefinedProperty: "undefined property",
	TypeMismatch:      "type mismatch",
	ArityMismatch:     "arity mismatch",
	NotCallable:       "not callable",
	BadSuperclass:     "bad superclass",
	StackOverflow:     "stack overflow",
	IndexOutOfRange:   "index out of range",
	ModuleNotFound:    "module not found",
	FiberError:        "fiber error",
	NativeError:       "native error",
}

func (k RuntimeErrorKind) String() string {
	if int(k) < len(runtimeKindNames) && runtimeKindNames[k] != "" {
		return runtimeKindNames[k]
	}
	return fmt.Sprintf("RuntimeErrorKind(%d)", k)
}

// TraceEntry is one frame of a runtime error's call trace.
type TraceEntry struct {
	Line     int
	Function string // empty for the top-level script
}

func (t TraceEntry) String() string {
	if t.Function == "" {
		return fmt.Sprintf("[line %d] in script", t.Line)
	}
	return fmt.Sprintf("[line %d] in %s()", t.Line, t.Function)
}

// RuntimeError reports a failure while executing bytecode. Trace lists the
// active frames innermost first.
type RuntimeError struct {
	Kind    RuntimeErrorKind
	Message string
	Trace   []TraceEntry
}

// Error renders the message followed by the trace, one frame per line.
func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, t := range e.Trace {
		sb.WriteByte('\n')
		sb.WriteString(t.String())
	}
	return sb.String()
}

// Is makes errors.Is(err, ErrRuntime) true.
func (e *RuntimeError) Is(target error) bool {
	return target == ErrRuntime
}

// Errorf creates a RuntimeError for natives to return. The VM attaches the
// trace when the error crosses the interpreter.
func Errorf(kind RuntimeErrorKind, format string, args ...any) error {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// HostAPIError
// ---------------------------------------------------------------------------

// HostAPIErrorKind classifies misuse of the embedding API.
type HostAPIErrorKind uint8

const (
	SlotOutOfRange HostAPIErrorKind = iota + 1
	SlotTypeMismatch
	ListIndexOutOfRange
	HandleNotCallable
	StaleHandle
	UnknownModule
	UnknownVariable
	BadSignature
	Busy
)

var hostKindNames = [...]string{
	SlotOutOfRange:      "slot out of range",
	SlotTypeMismatch:    "slot type mismatch",
	ListIndexOutOfRange: "list index out of range",
	HandleNotCallable:   "handle not callable",
	StaleHandle:         "stale handle",
	UnknownModule:       "unknown module",
	UnknownVariable:     "unknown variable",
	BadSignature:        "bad signature",
	Busy:                "vm busy",
}

func (k HostAPIErrorKind) String() string {
	if int(k) < len(hostKindNames) && hostKindNames[k] != "" {
		return hostKindNames[k]
	}
	return fmt.Sprintf("HostAPIErrorKind(%d)", k)
}

// HostAPIError reports an invalid request from the host.
type HostAPIError struct {
	Kind    HostAPIErrorKind
	Message string
}

func (e *HostAPIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is makes errors.Is(err, ErrHostAPI) true.
func (e *HostAPIError) Is(target error) bool {
	return target == ErrHostAPI
}

func hostError(kind HostAPIErrorKind, format string, args ...any) error {
	return &HostAPIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// CompileError
// ---------------------------------------------------------------------------

// CompileError reports a code object that failed to load.
type CompileError struct {
	Module string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCompile) true.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}
