// Package errs provides the structured error type shared by every symd
// package: memdb, stash, sdk, machoreader, objectstore, and the api
// handlers all return *errs.Error so a caller can switch on Code without
// string matching.
package errs

import (
	"errors"
	"fmt"
)

// Code is a high-level error category. It is not a Go error
// type itself — it labels an *Error so callers can dispatch on kind
// without string-matching a message.
type Code string

const (
	// CodeUnknownSdk: requested SDK not present locally.
	CodeUnknownSdk Code = "unknown_sdk"
	// CodeUnsupportedMemDbVersion: header version mismatch.
	CodeUnsupportedMemDbVersion Code = "unsupported_memdb_version"
	// CodeBadMemDb: bounds/invariant violation in a mapped MemDB file.
	CodeBadMemDb Code = "bad_memdb"
	// CodeUnknownArchitecture: requested arch not present in the object.
	CodeUnknownArchitecture Code = "unknown_architecture"
	// CodeMissingArchitecture: object has no usable architecture at all.
	CodeMissingArchitecture Code = "missing_architecture"
	// CodeRemoteUnavailable: object-store listing/download failed.
	CodeRemoteUnavailable Code = "remote_unavailable"
	// CodeBadConfig: a configuration value failed validation.
	CodeBadConfig Code = "bad_config"
	// CodeMissingConfig: a required configuration value was absent.
	CodeMissingConfig Code = "missing_config"
	// CodeInvalidRequest: a client request was malformed.
	CodeInvalidRequest Code = "invalid_request"
	// CodeInternal: an unclassified internal failure.
	CodeInternal Code = "internal"
)

// Error is the structured error returned throughout symd.
type Error struct {
	Op    string // operation that failed, e.g. "memdb.Open", "stash.Sync"
	SdkID string // SDK id involved, if any
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Op != "" && e.SdkID != "":
		return fmt.Sprintf("symd: %s (op=%s sdk=%s)", msg, e.Op, e.SdkID)
	case e.Op != "":
		return fmt.Sprintf("symd: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("symd: %s", msg)
	}
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches another *Error with the same Code, so callers can write
// errors.Is(err, &errs.Error{Code: errs.CodeUnknownSdk}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Code == te.Code
}

// New creates a structured error for an operation with no wrapped cause.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewSdk creates a structured error scoped to one SDK id.
func NewSdk(op, sdkID string, code Code, msg string) *Error {
	return &Error{Op: op, SdkID: sdkID, Code: code, Msg: msg}
}

// Wrap attaches op context to an existing error. If inner is already a
// structured *Error, its Code/SdkID/Msg are preserved (the caller's code
// argument is only used for a plain, unclassified inner error) so a chain
// of Wrap calls never loses the original classification. A nil inner
// error yields a nil *Error so callers can write `return errs.Wrap(...)`
// after an `if err != nil` check without an extra branch disappearing.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ie, ok := inner.(*Error); ok {
		return &Error{Op: op, SdkID: ie.SdkID, Code: ie.Code, Msg: ie.Msg, Inner: inner}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// WrapSdk attaches op/sdkID/code context to an existing error.
func WrapSdk(op, sdkID string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, SdkID: sdkID, Code: code, Msg: inner.Error(), Inner: inner}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
