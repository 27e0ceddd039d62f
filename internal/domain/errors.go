package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for categorization
const (
	ErrCodeConfig        = "CONFIG_ERROR"
	ErrCodeResultsParse  = "RESULTS_PARSE_ERROR"
	ErrCodeArtifactIO    = "ARTIFACT_IO_ERROR"
	ErrCodeReportGen     = "REPORT_GENERATION_FAILED"
	ErrCodeCleanup       = "CLEANUP_ERROR"
	ErrCodeExecution     = "EXECUTION_FAILED"
	ErrCodeRunDirExists  = "RUN_DIR_EXISTS"
	ErrCodeFixtureLookup = "FIXTURE_LOOKUP_FAILED"
)

// AppError is the base error type for all suite errors
type AppError struct {
	// Error code for programmatic handling
	Code string `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// Original error (for error wrapping)
	Cause error `json:"-"`

	// Metadata for additional context
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewError creates a new AppError
func NewError(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func ErrConfigMissing(names []string) *AppError {
	return NewError(ErrCodeConfig, fmt.Sprintf("missing required environment variables: %v", names)).
		WithMetadata("missing", names)
}

func ErrResultsParseFailed(path string, err error) *AppError {
	return NewError(ErrCodeResultsParse, fmt.Sprintf("cannot parse results file %s", path)).
		WithCause(err).
		WithMetadata("path", path)
}

func ErrArtifactIOFailed(path string, err error) *AppError {
	return NewError(ErrCodeArtifactIO, fmt.Sprintf("artifact unreadable: %s", path)).
		WithCause(err).
		WithMetadata("path", path)
}

func ErrReportFailed(reason string, err error) *AppError {
	return NewError(ErrCodeReportGen, fmt.Sprintf("report generation failed: %s", reason)).
		WithCause(err)
}

func ErrCleanupFailed(path string, err error) *AppError {
	return NewError(ErrCodeCleanup, fmt.Sprintf("cleanup failed: %s", path)).
		WithCause(err).
		WithMetadata("path", path)
}

func ErrExecutionFailed(reason string, err error) *AppError {
	return NewError(ErrCodeExecution, fmt.Sprintf("test execution failed: %s", reason)).
		WithCause(err)
}

func ErrRunDirExists(dir string) *AppError {
	return NewError(ErrCodeRunDirExists, fmt.Sprintf("run directory already exists: %s", dir)).
		WithMetadata("dir", dir)
}

func ErrFixtureLookup(reason string, err error) *AppError {
	return NewError(ErrCodeFixtureLookup, fmt.Sprintf("fixture lookup failed: %s", reason)).
		WithCause(err)
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode returns the error code for an error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// Sentinel errors for comparison (used with errors.Is)
var (
	ErrConfig       = NewError(ErrCodeConfig, "configuration error")
	ErrResultsParse = NewError(ErrCodeResultsParse, "results parse error")
	ErrArtifactIO   = NewError(ErrCodeArtifactIO, "artifact io error")
	ErrReport       = NewError(ErrCodeReportGen, "report generation failed")
	ErrCleanup      = NewError(ErrCodeCleanup, "cleanup error")
	ErrExecution    = NewError(ErrCodeExecution, "execution failed")
	ErrRunExists    = NewError(ErrCodeRunDirExists, "run directory exists")
	ErrFixture      = NewError(ErrCodeFixtureLookup, "fixture lookup failed")
)
