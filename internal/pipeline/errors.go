package pipeline

import (
	"errors"

	"github.com/joeott/docpipeline/internal/store"
)

// FailureClass drives the retry decision for a failed stage attempt.
type FailureClass int

const (
	// FailureTransient covers external flakiness (rate limits, timeouts);
	// retried with backoff up to the stage's attempt ceiling.
	FailureTransient FailureClass = iota
	// FailurePermanent covers inputs the external service rejects outright;
	// never retried.
	FailurePermanent
	// FailureIntegrity covers constraint violations and missing dependency
	// rows. These indicate a bug, not flakiness, and fail fast.
	FailureIntegrity
)

func (c FailureClass) String() string {
	switch c {
	case FailurePermanent:
		return "permanent"
	case FailureIntegrity:
		return "integrity"
	default:
		return "transient"
	}
}

// StageError tags an error with its failure class.
type StageError struct {
	Class FailureClass
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Transient wraps err as retryable external flakiness.
func Transient(err error) error { return &StageError{Class: FailureTransient, Err: err} }

// Permanent wraps err as a non-retryable external rejection.
func Permanent(err error) error { return &StageError{Class: FailurePermanent, Err: err} }

// Integrity wraps err as a data-integrity failure.
func Integrity(err error) error { return &StageError{Class: FailureIntegrity, Err: err} }

// Classify extracts the failure class of a stage error. Untagged errors
// default to transient, erring on the side of retrying.
func Classify(err error) FailureClass {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrNotFound) {
		return FailureIntegrity
	}
	return FailureTransient
}

// errAwaitingPoll is returned by the OCR stage when the external job was
// submitted and a poll is scheduled: the stage is neither done nor failed.
var errAwaitingPoll = errors.New("pipeline: awaiting external job")

// errCancelled aborts a stage whose document was cancelled underneath it.
var errCancelled = errors.New("pipeline: document cancelled")
