// Package engine provides the core types for the skillflow orchestration
// engine: the skill registry, the run status state machine, the sequential
// orchestrator, and the self-healing retry wrapper.
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// FailureClass represents the classification of a failure for retry and
// backoff decisions.
type FailureClass string

const (
	// FailureRateLimit indicates quota exhaustion or rate limiting by an
	// upstream service. Retried with aggressive, attempt-scaled backoff.
	FailureRateLimit FailureClass = "rate_limit"

	// FailureDependency indicates an unreachable or timing-out dependency.
	// Retried with moderate, capped backoff.
	FailureDependency FailureClass = "dependency"

	// FailureValidation indicates malformed input or a schema violation.
	// Waiting does not fix bad input, so the delay stays flat.
	FailureValidation FailureClass = "validation"

	// FailureRuntime is the catch-all class for unclassified failures.
	FailureRuntime FailureClass = "runtime"
)

// ClassifiedError is an error carrying an explicit failure class and
// orchestration context.
type ClassifiedError struct {
	// Class is the failure classification used by the retry wrapper.
	Class FailureClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Skill is the skill name that produced the error, if applicable.
	Skill string `json:"skill,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Skill != "" {
		return fmt.Sprintf("[%s] %s (skill=%s)", e.Class, msg, e.Skill)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewRateLimitError creates a new rate-limit classified error.
func NewRateLimitError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: FailureRateLimit, Message: message, Err: err}
}

// NewDependencyError creates a new dependency classified error.
func NewDependencyError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: FailureDependency, Message: message, Err: err}
}

// NewValidationError creates a new validation classified error.
func NewValidationError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: FailureValidation, Message: message, Err: err}
}

// NewRuntimeError creates a new runtime classified error.
func NewRuntimeError(message string, err error) *ClassifiedError {
	return &ClassifiedError{Class: FailureRuntime, Message: message, Err: err}
}

// WithSkill adds skill context to an error.
func (e *ClassifiedError) WithSkill(skill string) *ClassifiedError {
	e.Skill = skill
	return e
}

// WithCode adds an error code to an error.
func (e *ClassifiedError) WithCode(code string) *ClassifiedError {
	e.Code = code
	return e
}

// Classify determines the failure class of an arbitrary error. Errors that
// carry a ClassifiedError in their chain keep their class; everything else
// falls back to substring heuristics over the error text, the best available
// signal for errors raised by opaque third-party clients.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureRuntime
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate"):
		return FailureRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return FailureDependency
	case strings.Contains(msg, "validation"), strings.Contains(msg, "schema"):
		return FailureValidation
	default:
		return FailureRuntime
	}
}

// NotFoundError reports an unregistered skill, intent, or unknown run.
type NotFoundError struct {
	// Kind is the category of the missing entity ("skill", "intent", "run").
	Kind string

	// Name is the identifier that could not be resolved.
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// Is reports whether target matches this NotFoundError. Empty fields on the
// target act as wildcards so errors.Is(err, &NotFoundError{Kind: "skill"})
// matches any missing skill.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return (t.Kind == "" || t.Kind == e.Kind) && (t.Name == "" || t.Name == e.Name)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// StepFailure captures a skill error during a run. The orchestrator converts
// it into a terminal failed status; it never crosses the orchestrator
// boundary except through the durable path's retry wrapper.
type StepFailure struct {
	// Skill is the name of the skill that failed.
	Skill string

	// Err is the error the skill returned.
	Err error
}

// Error implements the error interface.
func (e *StepFailure) Error() string {
	return fmt.Sprintf("skill %s failed: %v", e.Skill, e.Err)
}

// Unwrap returns the skill error.
func (e *StepFailure) Unwrap() error {
	return e.Err
}

// Sentinel errors for the admission and storage layers.
var (
	// ErrDuplicateRequest reports that an idempotency key is already
	// claimed; the caller should poll the existing run instead.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrStoreUnavailable reports that the durable backing store is
	// unreachable for an operation that cannot be served best-effort.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Common error codes.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeDuplicate   = "DUPLICATE_REQUEST"
	ErrCodeTimeout     = "TIMEOUT"
	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeStore       = "STORE_UNAVAILABLE"
	ErrCodeSkillFailed = "SKILL_FAILED"
	ErrCodeInternal    = "INTERNAL_ERROR"
)
