package errors

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies domain errors for handling and exit-code decisions
type ErrorCategory string

const (
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryIO         ErrorCategory = "io"
	ErrorCategoryProcess    ErrorCategory = "process"
	ErrorCategoryDependency ErrorCategory = "dependency"
	ErrorCategoryTimeout    ErrorCategory = "timeout"
	ErrorCategoryCancelled  ErrorCategory = "cancelled"
	ErrorCategoryNotFound   ErrorCategory = "not_found"
	ErrorCategoryInternal   ErrorCategory = "internal"
)

// DomainError carries a category, an optional cause and free-form context
// key/value pairs for diagnostics.
type DomainError struct {
	Category ErrorCategory
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Category, e.Message))
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(" (" + strings.Join(pairs, ", ") + ")")
	}
	if e.Cause != nil {
		sb.WriteString(": " + e.Cause.Error())
	}
	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(category ErrorCategory, message string, cause error) *DomainError {
	return &DomainError{
		Category: category,
		Message:  message,
		Cause:    cause,
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return newError(ErrorCategoryValidation, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return newError(ErrorCategoryIO, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return newError(ErrorCategoryProcess, message, cause)
}

func NewDependencyError(message string, cause error) *DomainError {
	return newError(ErrorCategoryDependency, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return newError(ErrorCategoryTimeout, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return newError(ErrorCategoryCancelled, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return newError(ErrorCategoryNotFound, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return newError(ErrorCategoryInternal, message, cause)
}

// CategoryOf returns the category of err if it is a DomainError, or
// ErrorCategoryInternal otherwise.
func CategoryOf(err error) ErrorCategory {
	if de, ok := err.(*DomainError); ok {
		return de.Category
	}
	return ErrorCategoryInternal
}
