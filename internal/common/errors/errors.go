// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeProfileNotFound   ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeSchemeNotFound    ErrorCode = "SCHEME_NOT_FOUND"
	ErrCodeDependencyTimeout ErrorCode = "DEPENDENCY_TIMEOUT"
	ErrCodeMalformedRule     ErrorCode = "MALFORMED_RULE"
	ErrCodeCacheUnavailable  ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeCatalogQueryFailed     ErrorCode = "CATALOG_QUERY_FAILED"
	ErrCodeProfileFetchFailed     ErrorCode = "PROFILE_FETCH_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeBrokerUnavailable      ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewProfileNotFoundError is fatal to the request and never retried.
func NewProfileNotFoundError(userID string, cause error) *StandardError {
	return newError(ErrCodeProfileNotFound, "Citizen profile not found",
		fmt.Sprintf("userId: %s", userID), false, cause).
		WithMetadata("userId", userID)
}

// NewSchemeNotFoundError is returned when an explanation targets an unknown scheme.
func NewSchemeNotFoundError(schemeID string, cause error) *StandardError {
	return newError(ErrCodeSchemeNotFound, "Scheme not found in catalog",
		fmt.Sprintf("schemeId: %s", schemeID), false, cause).
		WithMetadata("schemeId", schemeID)
}

// NewDependencyTimeoutError marks a profile or catalog fetch that exceeded its bound.
func NewDependencyTimeoutError(dependency string, cause error) *StandardError {
	details := fmt.Sprintf("dependency: %s", dependency)
	if cause != nil {
		details = fmt.Sprintf("%s, error: %s", details, cause.Error())
	}
	return newError(ErrCodeDependencyTimeout, "Upstream dependency timed out", details, true, cause).
		WithMetadata("dependency", dependency)
}

// NewMalformedRuleError describes a rule whose operator and value types disagree.
// It is only ever logged; scoring continues.
func NewMalformedRuleError(schemeID, field, operator string) *StandardError {
	return newError(ErrCodeMalformedRule, "Eligibility rule is malformed",
		fmt.Sprintf("schemeId: %s, field: %s, operator: %s", schemeID, field, operator), false, nil)
}

// NewCacheUnavailableError wraps a cache backend failure.
func NewCacheUnavailableError(operation string, cause error) *StandardError {
	details := fmt.Sprintf("operation: %s", operation)
	if cause != nil {
		details = fmt.Sprintf("%s, error: %s", details, cause.Error())
	}
	return newError(ErrCodeCacheUnavailable, "Recommendation cache unavailable", details, true, cause)
}

// NewInvalidInputError is used when job variables fail validation.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Input validation failed", details, false, nil)
}

// NewCatalogQueryFailedError covers non-timeout catalog failures.
func NewCatalogQueryFailedError(source string, cause error) *StandardError {
	return newError(ErrCodeCatalogQueryFailed, "Scheme catalog query failed",
		fmt.Sprintf("source: %s, error: %v", source, cause), true, cause)
}

// NewProfileFetchFailedError covers non-timeout profile failures.
func NewProfileFetchFailedError(source string, cause error) *StandardError {
	return newError(ErrCodeProfileFetchFailed, "Citizen profile fetch failed",
		fmt.Sprintf("source: %s, error: %v", source, cause), true, cause)
}

// NewNotificationSendFailedError creates a retryable notification publish error.
func NewNotificationSendFailedError(channel string, cause error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification publish failed",
		fmt.Sprintf("channel: %s, error: %v", channel, cause), true, cause)
}

// NewBrokerUnavailableError covers Zeebe gateway failures.
func NewBrokerUnavailableError(operation string, cause error) *StandardError {
	return newError(ErrCodeBrokerUnavailable, "Workflow broker unavailable",
		fmt.Sprintf("operation: %s, error: %v", operation, cause), true, cause)
}

// NewInternalError wraps anything unexpected.
func NewInternalError(cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return newError(ErrCodeInternal, "Unexpected error", details, false, cause)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeProfileNotFound:        "PROFILE_NOT_FOUND",
	ErrCodeSchemeNotFound:         "SCHEME_NOT_FOUND",
	ErrCodeDependencyTimeout:      "DEPENDENCY_TIMEOUT",
	ErrCodeInvalidInput:           "INVALID_INPUT",
	ErrCodeCatalogQueryFailed:     "CATALOG_QUERY_FAILED",
	ErrCodeProfileFetchFailed:     "PROFILE_FETCH_FAILED",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodeBrokerUnavailable:      "BROKER_UNAVAILABLE",
	ErrCodeCacheUnavailable:       "CACHE_UNAVAILABLE",
	ErrCodeInternal:               "INTERNAL_ERROR",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeCatalogQueryFailed,
		ErrCodeProfileFetchFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeBrokerUnavailable,
		ErrCodeCacheUnavailable:
		return 3
	case ErrCodeDependencyTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err looking for a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROFILE"):
		return "PROFILE"
	case strings.Contains(codeStr, "SCHEME") || strings.Contains(codeStr, "CATALOG") || strings.Contains(codeStr, "RULE"):
		return "CATALOG"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "DEPENDENCY"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "BROKER"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
