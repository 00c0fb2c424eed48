package symd

import "testing"

func TestIsCodeReExport(t *testing.T) {
	err := &Error{Op: "stash.Sync", Code: ErrRemoteUnavailable, Msg: "bucket listing failed"}

	if !IsCode(err, ErrRemoteUnavailable) {
		t.Error("IsCode should match the wrapped code")
	}
	if IsCode(err, ErrBadConfig) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(nil, ErrRemoteUnavailable) {
		t.Error("IsCode(nil, ...) should be false")
	}
}
