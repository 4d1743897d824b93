package core

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for callers and for the HTTP boundary.
type Kind int

// Failure kinds.
const (
	KindInternal Kind = iota
	KindInput
	KindConversion
	KindModel
	KindTimeout
)

// Sentinel errors shared across stages.
var (
	ErrTextEmpty           = errors.New("target text cannot be empty")
	ErrAudioMissing        = errors.New("prompt audio is missing")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrAudioDecode         = errors.New("audio decode failed")
	ErrModelNotInitialized = errors.New("model bundle not initialized")
	ErrEmptySpeechCodes    = errors.New("speech code sequence is empty")
	ErrPromptTooLong       = errors.New("prompt exceeds maximum generation length")
	ErrObjectNotFound      = errors.New("object not found")
)

// PipelineError carries the failure kind and the stage that produced it.
type PipelineError struct {
	Err   error
	Stage string
	Kind  Kind
}

// NewError wraps err with a kind and stage. A nil err yields nil.
func NewError(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}

	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Errors that carry no kind are internal.
func KindOf(err error) Kind {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}

	return KindInternal
}

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input error"
	case KindConversion:
		return "conversion error"
	case KindModel:
		return "model error"
	case KindTimeout:
		return "timeout"
	case KindInternal:
		return "internal error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
