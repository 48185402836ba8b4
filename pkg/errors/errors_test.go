package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Message(t *testing.T) {
	err := NewValidationError("bad input", nil)
	assert.Contains(t, err.Error(), "[validation]")
	assert.Contains(t, err.Error(), "bad input")
}

func TestDomainError_WithContext(t *testing.T) {
	err := NewProcessError("spawn failed", nil).
		WithContext("pid", 1234).
		WithContext("executable", "/bin/echo")

	msg := err.Error()
	assert.Contains(t, msg, "pid=1234")
	assert.Contains(t, msg, "executable=/bin/echo")
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := NewIOError("read failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "underlying failure")
}

func TestDomainError_As(t *testing.T) {
	var de *DomainError
	err := fmt.Errorf("wrapped: %w", NewTimeoutError("too slow", nil))

	assert.True(t, stderrors.As(err, &de))
	assert.Equal(t, ErrorCategoryTimeout, de.Category)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, ErrorCategoryDependency, CategoryOf(NewDependencyError("dep", nil)))
	assert.Equal(t, ErrorCategoryInternal, CategoryOf(fmt.Errorf("plain")))
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err      *DomainError
		category ErrorCategory
	}{
		{NewValidationError("m", nil), ErrorCategoryValidation},
		{NewIOError("m", nil), ErrorCategoryIO},
		{NewProcessError("m", nil), ErrorCategoryProcess},
		{NewDependencyError("m", nil), ErrorCategoryDependency},
		{NewTimeoutError("m", nil), ErrorCategoryTimeout},
		{NewCancelledError("m", nil), ErrorCategoryCancelled},
		{NewNotFoundError("m", nil), ErrorCategoryNotFound},
		{NewInternalError("m", nil), ErrorCategoryInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.category, tc.err.Category)
	}
}
