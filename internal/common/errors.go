package common

import (
	"errors"
	"fmt"
)

// Error taxonomy for the extraction pipeline. Callers classify failures with
// errors.Is against these sentinels.
var (
	ErrRecognitionFailed = errors.New("recognition failed")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrMalformedInput    = errors.New("malformed input")
	ErrNotFound          = errors.New("record not found")
)

// RecognitionError is the single error the recognition adapter surfaces: the
// external service could not process the object, with a human-readable reason.
type RecognitionError struct {
	Reason string
	Cause  error
}

func (e *RecognitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("recognition failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("recognition failed: %s", e.Reason)
}

func (e *RecognitionError) Unwrap() error {
	return e.Cause
}

func (e *RecognitionError) Is(target error) bool {
	return target == ErrRecognitionFailed
}

func NewRecognitionError(reason string, cause error) *RecognitionError {
	return &RecognitionError{Reason: reason, Cause: cause}
}

// StoreError marks a structured-store write that did not succeed.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func (e *StoreError) Is(target error) bool {
	return target == ErrPersistenceFailed
}

func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, Cause: cause}
}
