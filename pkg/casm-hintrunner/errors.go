package casmhintrunner

import (
	"errors"
	"fmt"

	"github.com/vybium/casm-hintrunner/internal/casm-hintrunner/hints"
)

// ErrorCode represents a casm-hintrunner error code.
type ErrorCode int

const (
	// ErrUnknown represents an unknown error.
	ErrUnknown ErrorCode = iota

	// ErrVM represents a failure from the VM layer: bad memory access,
	// a type mismatch reading a cell, a bad instruction, or an
	// arithmetic error (division by zero, out-of-domain conversion).
	ErrVM

	// ErrProtocol represents a fatal shape violation that indicates a
	// compiler bug rather than recoverable runtime state: an
	// unsupported operand shape for a syscall pointer, an unknown
	// selector, a negative selector.
	ErrProtocol

	// ErrNotImplemented represents a reserved hint variant or syscall
	// selector that is parsed and serializable but not executed.
	ErrNotImplemented

	// ErrExtraction represents a return-value extraction request for
	// more cells than the run produced.
	ErrExtraction
)

// CasmError represents a casm-hintrunner error.
type CasmError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message.
func (e *CasmError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("casm-hintrunner error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("casm-hintrunner error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error.
func (e *CasmError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error.
func (e *CasmError) Is(target error) bool {
	t, ok := target.(*CasmError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// wrapRunError classifies an error raised during a run into a
// CasmError, per the propagation policy: only ProtocolError and
// NotImplementedError are fatal, everything else is a VmError.
func wrapRunError(err error) error {
	if err == nil {
		return nil
	}
	var protocolErr *hints.ProtocolError
	var notImplementedErr *hints.NotImplementedError
	switch {
	case errors.As(err, &protocolErr):
		return &CasmError{Code: ErrProtocol, Message: err.Error(), Cause: err}
	case errors.As(err, &notImplementedErr):
		return &CasmError{Code: ErrNotImplemented, Message: err.Error(), Cause: err}
	default:
		return &CasmError{Code: ErrVM, Message: err.Error(), Cause: err}
	}
}
