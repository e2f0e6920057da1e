// Package errors provides standardized error handling for the request router.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeAnalysisValidationFailed ErrorCode = "ANALYSIS_VALIDATION_FAILED"
	ErrCodeMissingMainTable         ErrorCode = "MISSING_MAIN_TABLE"
	ErrCodeMissingParameter         ErrorCode = "MISSING_PARAMETER"

	ErrCodeLLMTransportFailed ErrorCode = "LLM_TRANSPORT_FAILED"
	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMParseFailed     ErrorCode = "LLM_PARSE_FAILED"

	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed    ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeKnowledgeQueryFailed ErrorCode = "KNOWLEDGE_QUERY_FAILED"
	ErrCodeWorkflowStartFailed  ErrorCode = "WORKFLOW_START_FAILED"
	ErrCodeDispatchFailed       ErrorCode = "DISPATCH_FAILED"

	ErrCodeCacheUnavailable       ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the code from an error, or INTERNAL_ERROR when it is not a
// StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// IsValidation reports whether the error is a validation failure, as opposed
// to a transport or execution failure. Callers log these differently.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAnalysisValidationFailed, ErrCodeMissingMainTable, ErrCodeMissingParameter:
		return true
	}
	return false
}

// NewAnalysisValidationFailedError creates a non-retryable error for a
// malformed semantic-analysis payload.
func NewAnalysisValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalysisValidationFailed,
		Message:   "Semantic analysis payload is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingMainTableError creates a non-retryable error for a structured
// query without a PRINCIPALE table.
func NewMissingMainTableError() *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingMainTable,
		Message:   "Structured query has no main table",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingParameterError creates a non-retryable error for a condition
// placeholder with no bound value.
func NewMissingParameterError(placeholder string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingParameter,
		Message:   "Condition placeholder has no bound parameter",
		Details:   fmt.Sprintf("placeholder: :%s", placeholder),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTransportFailedError creates a retryable model gateway transport error.
func NewLLMTransportFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTransportFailed,
		Message:   "Model gateway request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable model gateway timeout error.
func NewLLMTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Model gateway call timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMParseFailedError creates a non-retryable error for model output that
// is not valid JSON. Distinct from transport failure so lenient callers can
// branch on it.
func NewLLMParseFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMParseFailed,
		Message:   "Model output is not valid JSON",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable SQL execution error.
func NewQueryExecutionFailedError(table string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("table: %s, error: %s", table, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search error.
func NewSearchQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Search index query error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewKnowledgeQueryFailedError creates a retryable knowledge-retrieval error.
func NewKnowledgeQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeKnowledgeQueryFailed,
		Message:   "Knowledge retrieval error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowStartFailedError creates a retryable workflow engine error.
func NewWorkflowStartFailedError(process string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowStartFailed,
		Message:   "Workflow instance creation failed",
		Details:   fmt.Sprintf("process: %s, error: %s", process, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchFailedError creates a terminal dispatch error for an agent.
func NewDispatchFailedError(agent string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchFailed,
		Message:   fmt.Sprintf("Dispatch to agent '%s' failed", agent),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache store error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Response cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification error.
func NewNotificationSendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
