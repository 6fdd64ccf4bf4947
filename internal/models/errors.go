package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for callers and transports
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindIneligible        ErrorKind = "ineligible"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindDependencyFailure ErrorKind = "dependency_failure"
	KindForbidden         ErrorKind = "forbidden"
	KindInternal          ErrorKind = "internal"
)

// Error is a classified failure with a human-readable message
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind and message so that wrapped
// copies created with WithCause still compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// WithCause returns a copy of e wrapping cause
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrSubmissionNotFound  = NewError(KindNotFound, "weather data submission not found")
	ErrChallengeNotFound   = NewError(KindNotFound, "challenge not found")
	ErrVoteNotFound        = NewError(KindNotFound, "vote not found")
	ErrUserNotFound        = NewError(KindNotFound, "user not found")
	ErrCallerNotFound      = NewError(KindNotFound, "caller not found")
	ErrTargetNotFound      = NewError(KindNotFound, "target user not found")
	ErrDuplicateVote       = NewError(KindConflict, "user has already voted on this submission")
	ErrAlreadyRewarded     = NewError(KindConflict, "user has already been rewarded for this submission")
	ErrAlreadyFinalized    = NewError(KindConflict, "submission status already finalized")
	ErrRewardInProgress    = NewError(KindConflict, "a reward for this submission is already in progress")
	ErrChallengeIneligible = NewError(KindIneligible, "submission is outside the challenge area or the challenge has expired")
	ErrMajorityInvalid     = NewError(KindIneligible, "majority voted the data as invalid, no reward given")
	ErrNoPayoutAddress     = NewError(KindInvalidInput, "user has no registered wallet address")
	ErrInvalidAddress      = NewError(KindInvalidInput, "wallet address is not valid")
	ErrInvalidInput        = NewError(KindInvalidInput, "invalid input")
	ErrTransferFailed      = NewError(KindDependencyFailure, "token transfer failed")
	ErrForbidden           = NewError(KindForbidden, "caller is not an admin")
)
