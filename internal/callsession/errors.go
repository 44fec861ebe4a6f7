package callsession

import (
	"errors"
	"fmt"

	"github.com/eleven-am/voice-callcenter/internal/shared"
)

// CallError is returned by registry operations that name a call.
type CallError struct {
	Code   string
	CallID string
	err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: call %q", e.err.Error(), e.CallID)
}

func (e *CallError) Unwrap() error { return e.err }

// Is matches CallErrors by code so errors.Is(err, ErrDuplicateCall) works for any call id.
func (e *CallError) Is(target error) bool {
	var t *CallError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

var (
	ErrDuplicateCall  = &CallError{Code: "duplicate_call", err: fmt.Errorf("call already active: %w", shared.ErrConflict)}
	ErrUnknownCall    = &CallError{Code: "unknown_call", err: fmt.Errorf("call not found: %w", shared.ErrNotFound)}
	ErrCallNotActive  = &CallError{Code: "call_not_active", err: fmt.Errorf("call is ending: %w", shared.ErrConflict)}
	ErrRegistryClosed = &CallError{Code: "registry_closed", err: fmt.Errorf("registry closed: %w", shared.ErrUnavailable)}
)

func newCallError(base *CallError, callID string) *CallError {
	return &CallError{Code: base.Code, CallID: callID, err: base.err}
}
