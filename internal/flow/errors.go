package flow

import (
	"errors"
	"fmt"
)

// ErrSessionExpired signals that a step effect needed a field that is no
// longer in the session (typically after a process restart). The workflow
// aborts and the user is told to start over.
var ErrSessionExpired = errors.New("session expired")

// ValidationError marks recoverable bad input: the engine re-prompts and the
// step is not advanced.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Code is used for handler summary logs.
func (e *ValidationError) Code() string { return "VALIDATION" }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a recoverable input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// OwnershipError marks a selection that references a resource the acting
// user does not own and is not privileged to use. The workflow aborts.
type OwnershipError struct {
	Resource string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s belongs to another user", e.Resource)
}

func (e *OwnershipError) Code() string { return "OWNERSHIP" }

// UniquenessError marks a duplicate phone submitted during onboarding.
// Owned distinguishes "already yours" from "already someone else's".
type UniquenessError struct {
	Phone string
	Owned bool
}

func (e *UniquenessError) Error() string {
	if e.Owned {
		return fmt.Sprintf("account %s is already onboarded by you", e.Phone)
	}
	return fmt.Sprintf("account %s already exists", e.Phone)
}

func (e *UniquenessError) Code() string { return "DUPLICATE_PHONE" }

// ExternalError wraps a failed collaborator call. The workflow aborts; the
// engine imposes no retry on top of whatever the collaborator already does.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func (e *ExternalError) Code() string { return "EXTERNAL_CALL" }

// External wraps err as an ExternalError unless it already carries workflow
// semantics of its own.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		oe *OwnershipError
		ue *UniquenessError
		ve *ValidationError
	)
	if errors.As(err, &oe) || errors.As(err, &ue) || errors.As(err, &ve) || errors.Is(err, ErrSessionExpired) {
		return err
	}
	return &ExternalError{Op: op, Err: err}
}
