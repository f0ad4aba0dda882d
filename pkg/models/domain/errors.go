package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidRequest   ErrorKind = "InvalidRequest"
	KindNotFound         ErrorKind = "NotFound"
	KindDataUnavailable  ErrorKind = "DataUnavailable"
	KindQueryError       ErrorKind = "QueryError"
	KindAggregationError ErrorKind = "AggregationError"
	KindRenderError      ErrorKind = "RenderError"
	KindRenderTimeout    ErrorKind = "RenderTimeout"
	KindExportError      ErrorKind = "ExportError"
	KindExportTimeout    ErrorKind = "ExportTimeout"
	KindRequestCancelled ErrorKind = "RequestCancelled"
)

// Sentinels for errors.Is matching against any PipelineError of the same kind.
var (
	ErrInvalidRequest   = &PipelineError{Kind: KindInvalidRequest}
	ErrNotFound         = &PipelineError{Kind: KindNotFound}
	ErrDataUnavailable  = &PipelineError{Kind: KindDataUnavailable}
	ErrQueryError       = &PipelineError{Kind: KindQueryError}
	ErrAggregationError = &PipelineError{Kind: KindAggregationError}
	ErrRenderError      = &PipelineError{Kind: KindRenderError}
	ErrRenderTimeout    = &PipelineError{Kind: KindRenderTimeout}
	ErrExportError      = &PipelineError{Kind: KindExportError}
	ErrExportTimeout    = &PipelineError{Kind: KindExportTimeout}
	ErrRequestCancelled = &PipelineError{Kind: KindRequestCancelled}
)

// PipelineError is a tagged failure carrying the kind and the stage it surfaced in.
type PipelineError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func NewError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

// Message is the caller-facing description, without the kind and stage prefix.
func (e *PipelineError) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// WithStage returns a copy of err tagged with stage. Errors that are not
// PipelineErrors are wrapped with fallback as their kind.
func WithStage(err error, stage Stage, fallback ErrorKind) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		out := *pe
		out.Stage = stage
		return &out
	}
	return &PipelineError{Stage: stage, Kind: fallback, Err: err}
}

// KindOf reports the kind of err, or "" when err is not a PipelineError.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
