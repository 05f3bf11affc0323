package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/emcode/internal/prompts"
)

// Sentinel errors for workflow operations.
var (
	ErrInterrupted       = errors.New("workflow interrupted")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrInvalidResponse   = errors.New("invalid inference response")
	ErrCheckpoint        = errors.New("checkpoint unavailable")
	ErrMissingState      = errors.New("missing workflow state")
)

// TimeoutError reports that a stage call exceeded its deadline.
type TimeoutError struct {
	Stage    prompts.Stage
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage timed out after %s", e.Stage, e.Deadline)
}

// Retryable reports that resubmitting the document may succeed.
func (e *TimeoutError) Retryable() bool { return true }

// InferenceError reports that the inference service failed or returned a
// response the stage could not use.
type InferenceError struct {
	Stage prompts.Stage
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s stage inference failed: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Retryable reports false: the same input is expected to fail the same way.
func (e *InferenceError) Retryable() bool { return false }

// ErrorKind classifies a failed outcome.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindInference ErrorKind = "inference"
	KindInternal  ErrorKind = "internal"
)

// ErrorDescriptor is the serializable form of a stage failure.
type ErrorDescriptor struct {
	Stage      prompts.Stage `json:"stage,omitempty"`
	Kind       ErrorKind     `json:"kind"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"retryable"`
	DeadlineMS int64         `json:"deadline_ms,omitempty"`
}

// Describe converts err into an ErrorDescriptor.
func Describe(err error) *ErrorDescriptor {
	var te *TimeoutError
	if errors.As(err, &te) {
		return &ErrorDescriptor{
			Stage:      te.Stage,
			Kind:       KindTimeout,
			Message:    te.Error(),
			Retryable:  te.Retryable(),
			DeadlineMS: te.Deadline.Milliseconds(),
		}
	}

	var ie *InferenceError
	if errors.As(err, &ie) {
		return &ErrorDescriptor{
			Stage:     ie.Stage,
			Kind:      KindInference,
			Message:   ie.Err.Error(),
			Retryable: ie.Retryable(),
		}
	}

	return &ErrorDescriptor{
		Kind:    KindInternal,
		Message: err.Error(),
	}
}

// Err rebuilds the typed error a descriptor was produced from.
func (d *ErrorDescriptor) Err() error {
	switch d.Kind {
	case KindTimeout:
		return &TimeoutError{
			Stage:    d.Stage,
			Deadline: time.Duration(d.DeadlineMS) * time.Millisecond,
		}
	case KindInference:
		return &InferenceError{Stage: d.Stage, Err: errors.New(d.Message)}
	default:
		return errors.New(d.Message)
	}
}
