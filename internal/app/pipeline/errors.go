package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds. Match with errors.Is.
var (
	ErrNotFound     = errors.New("video not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrExtraction   = errors.New("landmark extraction failed")
	ErrScoring      = errors.New("scoring failed")
	ErrPersist      = errors.New("artifact persistence failed")
	ErrCanceled     = errors.New("analysis canceled")
)

// Stage is a step of the pipeline state machine.
type Stage string

// Stages in execution order.
const (
	StageStart     Stage = "start"
	StageExtract   Stage = "extract"
	StageScore     Stage = "score"
	StageSummarize Stage = "summarize"
	StageDone      Stage = "done"
)

// Error is the single failure surfaced by Run. Its artifacts have already
// been removed when it is returned.
type Error struct {
	Kind           error
	Stage          Stage
	AnalysisID     string
	ProcessingTime time.Duration
	Err            error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis %s: %s: %v", e.AnalysisID, e.Stage, e.Kind)
	}
	return fmt.Sprintf("analysis %s: %s: %v: %v", e.AnalysisID, e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindName returns a stable label for the kind of err, for logs and metrics.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrExtraction):
		return "extraction_failure"
	case errors.Is(err, ErrScoring):
		return "scoring_failure"
	case errors.Is(err, ErrPersist):
		return "persist_failure"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}
