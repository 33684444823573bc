package production

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrorCode standardizes planner failure semantics across packages.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "validation"
	CodeNotFound           ErrorCode = "not_found"
	CodeConflict           ErrorCode = "conflict"
	CodeIllegalTransition  ErrorCode = "illegal_transition"
	CodeCycle              ErrorCode = "dependency_cycle"
	CodePreconditionFailed ErrorCode = "precondition_failed"
	CodeGovernanceRejected ErrorCode = "governance_rejected"
	CodeProcessing         ErrorCode = "processing"
	CodeJobExecution       ErrorCode = "job_execution"
	CodeRetryable          ErrorCode = "retryable"
	CodeInternal           ErrorCode = "internal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrCycle             = errors.New("dependency cycle")
)

// PlannerError is the base error for everything the planner reports.
type PlannerError struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *PlannerError) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *PlannerError) Unwrap() error { return e.Cause }

// Is lets errors.Is match the sentinel that corresponds to the code.
func (e *PlannerError) Is(target error) bool {
	switch e.Code {
	case CodeNotFound:
		return target == ErrNotFound
	case CodeConflict:
		return target == ErrVersionConflict
	case CodeIllegalTransition:
		return target == ErrIllegalTransition
	case CodeCycle:
		return target == ErrCycle
	}
	return false
}

func NewError(code ErrorCode, op, message string, cause error) error {
	return &PlannerError{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with a planner code.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from any error in the taxonomy.
func CodeOf(err error) ErrorCode {
	var pe *PlannerError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var gr *GovernanceRejection
	if errors.As(err, &gr) {
		return CodeGovernanceRejected
	}
	var je *JobExecutionError
	if errors.As(err, &je) {
		return CodeJobExecution
	}
	var pr *ProcessingError
	if errors.As(err, &pr) {
		return CodeProcessing
	}
	return ""
}

// ValidationError carries every error-severity issue of a rejected document.
// It is fixed by correcting the document and never retried.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "manifest invalid"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Path, is.Message))
	}
	return "manifest invalid: " + strings.Join(parts, "; ")
}

// ProcessingError reports that a named phase of the pipeline failed.
type ProcessingError struct {
	Phase   string
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Phase, e.Message)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// JobExecutionError reports a single job failure.
type JobExecutionError struct {
	JobID     uuid.UUID
	JobType   JobType
	Message   string
	Retryable bool
	Cause     error
}

func (e *JobExecutionError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("job %s (%s): %s", e.JobID, e.JobType, msg)
}

func (e *JobExecutionError) Unwrap() error { return e.Cause }

// GovernanceRejection is returned when a cap refuses admission. Retrying
// cannot change the outcome.
type GovernanceRejection struct {
	Check  string
	Reason string
}

func (e *GovernanceRejection) Error() string {
	return fmt.Sprintf("governance_rejected: %s: %s", e.Check, e.Reason)
}

// Retryable reports whether the scheduler may try the failed work again.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var gr *GovernanceRejection
	if errors.As(err, &gr) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var je *JobExecutionError
	if errors.As(err, &je) {
		return je.Retryable
	}
	return true
}
