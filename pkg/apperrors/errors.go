package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrNoRelevantSchema = errors.New("no relevant schema found for question")
)

// Kind classifies a pipeline failure. The RPC boundary maps Kind to the
// wire-level error.type string, and the repair controller dispatches on it.
type Kind string

const (
	KindNoRelevantSchema  Kind = "NoRelevantSchema"
	KindGenerationInvalid Kind = "GenerationInvalid"
	KindGenerationTimeout Kind = "GenerationTimeout"
	KindStructuralError   Kind = "StructuralError"
	KindUnknownTable      Kind = "UnknownTable"
	KindUnknownColumn     Kind = "UnknownColumn"
	KindPlannerError      Kind = "PlannerError"
	KindExecutionError    Kind = "ExecutionError"
	KindPermissionDenied  Kind = "PermissionDenied"
	KindCancelled         Kind = "Cancelled"
	KindUnreachable       Kind = "Unreachable"
	KindInternal          Kind = "Internal"
)

// Stage names the pipeline stage an error surfaced in. Carried into logs
// and traces so a timeout can be attributed to retrieval vs generation.
type Stage string

const (
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageStructural Stage = "structural_validation"
	StageSemantic   Stage = "semantic_validation"
	StagePlanning   Stage = "planning"
	StageExecution  Stage = "execution"
	StageEmbedding  Stage = "embedding"
)

// PipelineError is the structured error every stage returns on failure.
type PipelineError struct {
	Kind        Kind
	Stage       Stage
	SQLState    string // set for planner/execution errors
	Message     string
	Recoverable bool // true when the repair controller may retry
	Cause       error
}

func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s [%s]", e.Kind, e.Stage)
	if e.SQLState != "" {
		msg += " " + e.SQLState
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a PipelineError. Recoverability defaults from the kind;
// use WithRecoverable to override (planner errors vary by SQLSTATE).
func New(kind Kind, stage Stage, message string) *PipelineError {
	return &PipelineError{
		Kind:        kind,
		Stage:       stage,
		Message:     message,
		Recoverable: defaultRecoverable(kind),
	}
}

// Wrap creates a PipelineError with an underlying cause.
func Wrap(kind Kind, stage Stage, message string, cause error) *PipelineError {
	e := New(kind, stage, message)
	e.Cause = cause
	return e
}

// WithSQLState attaches a SQLSTATE code and returns the error.
func (e *PipelineError) WithSQLState(code string) *PipelineError {
	e.SQLState = code
	return e
}

// WithRecoverable overrides the default recoverability.
func (e *PipelineError) WithRecoverable(r bool) *PipelineError {
	e.Recoverable = r
	return e
}

func defaultRecoverable(kind Kind) bool {
	switch kind {
	case KindGenerationInvalid, KindGenerationTimeout, KindUnknownTable, KindUnknownColumn:
		return true
	case KindPlannerError, KindExecutionError:
		// Refined per-SQLSTATE by the caller.
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from an error chain, or KindInternal.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsRecoverable reports whether the repair controller may retry after err.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}
	return false
}

// SQLStateOf extracts the SQLSTATE from an error chain, if any.
func SQLStateOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.SQLState
	}
	return ""
}
