package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeInvalidCoordinate = "INVALID_COORDINATE"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeExpression        = "EXPRESSION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
)

// GraphError is the structured error returned by graph builds, queries and
// structural edits.
type GraphError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TaskRef string         `json:"task_ref,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GraphError) Error() string {
	if e.TaskRef != "" {
		return fmt.Sprintf("[%s] task %s: %s", e.Code, e.TaskRef, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GraphError.
func NewError(code, message string) *GraphError {
	return &GraphError{Code: code, Message: message}
}

// NewErrorf creates a new GraphError with a formatted message.
func NewErrorf(code, format string, args ...any) *GraphError {
	return &GraphError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask attaches a task reference name to the error.
func (e *GraphError) WithTask(ref string) *GraphError {
	e.TaskRef = ref
	return e
}

// WithCause attaches an underlying cause.
func (e *GraphError) WithCause(err error) *GraphError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GraphError) WithDetails(details map[string]any) *GraphError {
	e.Details = details
	return e
}

// ErrorCode returns the code of a GraphError anywhere in err's chain, or "".
func ErrorCode(err error) string {
	for err != nil {
		if ge, ok := err.(*GraphError); ok {
			return ge.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
