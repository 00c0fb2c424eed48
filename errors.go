package symd

import "github.com/coresymbols/symd/internal/errs"

// Error is the structured error type returned throughout symd. It is
// re-exported here so callers only need to import the root package to
// type-switch or errors.As against it.
type Error = errs.Error

// Error codes, re-exported from internal/errs.
const (
	ErrUnknownSdk              = errs.CodeUnknownSdk
	ErrUnsupportedMemDbVersion = errs.CodeUnsupportedMemDbVersion
	ErrBadMemDb                = errs.CodeBadMemDb
	ErrUnknownArchitecture     = errs.CodeUnknownArchitecture
	ErrMissingArchitecture     = errs.CodeMissingArchitecture
	ErrRemoteUnavailable       = errs.CodeRemoteUnavailable
	ErrBadConfig               = errs.CodeBadConfig
	ErrMissingConfig           = errs.CodeMissingConfig
	ErrInvalidRequest          = errs.CodeInvalidRequest
	ErrInternal                = errs.CodeInternal
)

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code errs.Code) bool {
	return errs.Is(err, code)
}
