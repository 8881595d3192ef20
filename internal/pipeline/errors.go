package pipeline

import "fmt"

// Kind is the stable error classification surfaced to callers so the UI
// can render kind-specific guidance. Raw messages stay in logs.
type Kind string

const (
	KindQuotaExceeded Kind = "quota_exceeded"
	KindInference     Kind = "inference_error"
	KindNormalization Kind = "normalization_error"
	KindStorage       Kind = "storage_error"
	KindInvalidInput  Kind = "invalid_input"
	KindInternal      Kind = "internal_error"
)

// Error is a pipeline failure annotated with its kind and the stage it
// occurred in.
type Error struct {
	Kind   Kind
	Stage  State
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
}

func (e *Error) Unwrap() error { return e.Err }

func failure(kind Kind, stage State, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
