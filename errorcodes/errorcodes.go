// Package errorcodes defines the failure taxonomy shared by every package
// that sits between an untrusted request and the device seed. The message
// layer maps these codes onto its failure responses verbatim.
package errorcodes

import (
	"errors"
	"fmt"
)

const (
	ErrCodeAccessDenied        = "AccessDenied"
	ErrCodeInvalidInput        = "InvalidInput"
	ErrCodeProofFailure        = "ProofFailure"
	ErrCodeUninitializedDevice = "UninitializedDevice"
)

var (
	// ErrAccessDenied matches every error raised because a key path or
	// curve falls outside the namespaces granted to a keychain.
	ErrAccessDenied = &Error{code: ErrCodeAccessDenied}

	// ErrInvalidInput matches every error raised for malformed or out of
	// range request data.
	ErrInvalidInput = &Error{code: ErrCodeInvalidInput}

	// ErrProofFailure matches every error raised while creating, verifying
	// or rewinding a range or surjection proof.
	ErrProofFailure = &Error{code: ErrCodeProofFailure}

	// ErrUninitializedDevice matches errors raised when no seed is
	// available to build a keychain from.
	ErrUninitializedDevice = &Error{code: ErrCodeUninitializedDevice}
)

// Error is an error that carries one of the failure codes above. Packages
// declare their own sentinels with New so callers can test either for the
// precise check that failed or for the broad failure class.
type Error struct {
	code string
	msg  string
}

// New returns a sentinel error carrying the given code.
func New(code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf is like New but formats the message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.msg == "" {
		return e.code
	}

	return e.msg
}

// Code returns the failure code of the error.
func (e *Error) Code() string {
	return e.code
}

// Is reports whether target is the class sentinel for this error's code.
// Class sentinels are the package level Err* values, which carry no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.msg == "" && t.code == e.code
}

// CodeOf returns the failure code carried by err, or the empty string if err
// has none.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}

	return ""
}
