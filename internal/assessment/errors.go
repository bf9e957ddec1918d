package assessment

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongPhase is returned by triggers that do not apply to the current
	// phase. State is left untouched.
	ErrWrongPhase = errors.New("assessment: not allowed in the current phase")

	// ErrBusy is returned by Listen while another operation is in flight.
	ErrBusy = errors.New("assessment: another operation is in progress")

	// ErrRecognitionUnsupported means no speech recogniser is available, so
	// recall cannot be captured.
	ErrRecognitionUnsupported = errors.New("assessment: speech recognition is not supported")

	// ErrReset is returned by an operation whose run was reset while it was
	// in flight.
	ErrReset = errors.New("assessment: run was reset")
)

// SequenceAbortedError reports that a run was abandoned and the machine
// returned to Idle. Err is the delivery failure, or
// ErrRecognitionUnsupported when the run reached recall without a recogniser.
type SequenceAbortedError struct {
	// Phase is the phase the run was in when it aborted.
	Phase Phase

	// Err is the cause.
	Err error
}

func (e *SequenceAbortedError) Error() string {
	return fmt.Sprintf("assessment: run aborted while %s: %v", e.Phase, e.Err)
}

func (e *SequenceAbortedError) Unwrap() error { return e.Err }

// RecognitionError reports a failed listening attempt. The machine stays in
// Recalling and Listen may be called again.
type RecognitionError struct {
	// Attempt is the 1-based listening attempt within the run.
	Attempt int

	// Err is the recogniser's error.
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("assessment: recognition attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }
