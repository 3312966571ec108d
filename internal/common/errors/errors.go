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
	// Extraction
	ErrCodeOCRFailed         ErrorCode = "OCR_FAILED"
	ErrCodeExtractionTimeout ErrorCode = "EXTRACTION_TIMEOUT"
	ErrCodeInvalidImage      ErrorCode = "INVALID_IMAGE"

	// Job input
	ErrCodeInvalidExtraction ErrorCode = "INVALID_EXTRACTION"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"

	// Catalog search
	ErrCodeSearchUnavailable  ErrorCode = "SEARCH_UNAVAILABLE"
	ErrCodeSearchTimeout      ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeCatalogQueryFailed ErrorCode = "CATALOG_QUERY_FAILED"
	ErrCodeIndexNotFound      ErrorCode = "INDEX_NOT_FOUND"

	// Infrastructure
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeBrokerUnavailable        ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeScanTimeout              ErrorCode = "SCAN_TIMEOUT"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches another StandardError with the same code, so sentinel values
// can be compared with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError unwraps err to a StandardError if one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
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
		Cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewOCRFailedError reports that the vision model produced nothing usable.
func NewOCRFailedError(details string) *StandardError {
	return newError(ErrCodeOCRFailed, "Text extraction failed", details, false, nil)
}

// NewExtractionTimeoutError creates a retryable extraction timeout.
func NewExtractionTimeoutError(err error) *StandardError {
	return newError(ErrCodeExtractionTimeout, "Text extraction timed out", detailsOf(err), true, err)
}

// NewInvalidImageError rejects an image that cannot be sent for extraction.
func NewInvalidImageError(details string) *StandardError {
	return newError(ErrCodeInvalidImage, "Invalid card image", details, false, nil)
}

// NewInvalidExtractionError rejects a malformed extraction payload.
func NewInvalidExtractionError(details string) *StandardError {
	return newError(ErrCodeInvalidExtraction, "Invalid extraction payload", details, false, nil)
}

// NewInvalidInputError rejects job variables that fail schema validation.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false, nil)
}

// NewSearchUnavailableError wraps a catalog backend failure.
func NewSearchUnavailableError(backend string, err error) *StandardError {
	return newError(ErrCodeSearchUnavailable,
		fmt.Sprintf("Catalog backend '%s' unavailable", backend), detailsOf(err), true, err).
		WithMetadata("backend", backend)
}

// NewSearchTimeoutError creates a retryable search timeout.
func NewSearchTimeoutError(backend string, err error) *StandardError {
	return newError(ErrCodeSearchTimeout,
		fmt.Sprintf("Catalog backend '%s' timed out", backend), detailsOf(err), true, err).
		WithMetadata("backend", backend)
}

// NewCatalogQueryFailedError reports a query the backend rejected.
func NewCatalogQueryFailedError(backend string, err error) *StandardError {
	return newError(ErrCodeCatalogQueryFailed,
		fmt.Sprintf("Catalog query failed on '%s'", backend), detailsOf(err), true, err).
		WithMetadata("backend", backend)
}

// NewIndexNotFoundError creates a non-retryable missing index error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Catalog index not found",
		fmt.Sprintf("index: %s", indexName), false, nil)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", detailsOf(err), true, err)
}

// NewCacheUnavailableError wraps a query cache failure.
func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Query cache unavailable", detailsOf(err), true, err)
}

// NewBrokerUnavailableError wraps a failed Zeebe gateway call.
func NewBrokerUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerUnavailable,
		fmt.Sprintf("Zeebe operation '%s' failed", operation), detailsOf(err), true, err)
}

// NewScanTimeoutError reports a job whose whole scan outlived its deadline,
// whichever stage was running.
func NewScanTimeoutError(taskType string, err error) *StandardError {
	return newError(ErrCodeScanTimeout,
		fmt.Sprintf("Job '%s' timed out", taskType), detailsOf(err), true, err).
		WithMetadata("taskType", taskType)
}

// NewInternalError wraps an unexpected error.
func NewInternalError(details string, err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", details, false, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeOCRFailed:                "OCR_FAILED",
	ErrCodeExtractionTimeout:        "EXTRACTION_TIMEOUT",
	ErrCodeInvalidImage:             "INVALID_IMAGE",
	ErrCodeInvalidExtraction:        "INVALID_EXTRACTION",
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeSearchUnavailable:        "SEARCH_UNAVAILABLE",
	ErrCodeSearchTimeout:            "SEARCH_TIMEOUT",
	ErrCodeCatalogQueryFailed:       "CATALOG_QUERY_FAILED",
	ErrCodeIndexNotFound:            "INDEX_NOT_FOUND",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeCacheUnavailable:         "CACHE_UNAVAILABLE",
	ErrCodeBrokerUnavailable:        "BROKER_UNAVAILABLE",
	ErrCodeScanTimeout:              "SCAN_TIMEOUT",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSearchUnavailable,
		ErrCodeCatalogQueryFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeCacheUnavailable,
		ErrCodeBrokerUnavailable:
		return 3

	case ErrCodeSearchTimeout,
		ErrCodeExtractionTimeout,
		ErrCodeScanTimeout:
		return 2

	default:
		return 0 // business errors: no retry
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

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "OCR") || strings.Contains(codeStr, "EXTRACTION_TIMEOUT") || strings.Contains(codeStr, "IMAGE"):
		return "EXTRACTION"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "CATALOG") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "CACHE"):
		return "STORAGE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "BROKER") || strings.Contains(codeStr, "SCAN_TIMEOUT"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
