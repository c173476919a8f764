package port

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used across ports. Typed errors below match them with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRepository      = errors.New("not a git repository")
	ErrCommandFailed          = errors.New("command failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrValidation             = errors.New("validation failed")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrRendererNotFound       = errors.New("report format not supported")
	ErrJobNotCompleted        = errors.New("job not completed")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is or wraps a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// InvalidRepositoryError reports a path that exists but is not under git.
type InvalidRepositoryError struct {
	Path string
}

func (e *InvalidRepositoryError) Error() string {
	return fmt.Sprintf("not a git repository: %s", e.Path)
}

// Is makes errors.Is(err, ErrInvalidRepository) true.
func (e *InvalidRepositoryError) Is(target error) bool {
	return target == ErrInvalidRepository
}

// CommandError is a git invocation that exited non-zero.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: exit %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrCommandFailed) true.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// TransitionError is a rejected job status change.
type TransitionError struct {
	JobID string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidStateTransition) true.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// FieldError is one problem found in a request payload.
type FieldError struct {
	Location []string `json:"location"`
	Message  string   `json:"message"`
	Kind     string   `json:"kind"`
}

// Validation error kinds.
const (
	KindMissing = "missing"
	KindInvalid = "invalid"
	KindType    = "type_error"
)

// ValidationErrors collects field errors for a single request.
type ValidationErrors []FieldError

// NewValidationError builds a single-entry ValidationErrors.
func NewValidationError(kind, message string, location ...string) ValidationErrors {
	return ValidationErrors{{Location: location, Message: message, Kind: kind}}
}

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, strings.Join(fe.Location, ".")+": "+fe.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) true.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
