package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_WrapsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := fmt.Errorf("scan: %w", NewSearchTimeoutError("elasticsearch", cause))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, &StandardError{Code: ErrCodeSearchTimeout})
	assert.NotErrorIs(t, err, &StandardError{Code: ErrCodeOCRFailed})

	stdErr, ok := AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeSearchTimeout, stdErr.Code)
	assert.Equal(t, "elasticsearch", stdErr.Metadata["backend"])
	assert.True(t, stdErr.Retryable)
}

func TestAsStandardError_PlainError(t *testing.T) {
	_, ok := AsStandardError(stderrors.New("plain"))
	assert.False(t, ok)
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      string
		retries   int
		retryable bool
	}{
		{"search unavailable", NewSearchUnavailableError("tcg", stderrors.New("502")), "SEARCH_UNAVAILABLE", 3, true},
		{"extraction timeout", NewExtractionTimeoutError(context.DeadlineExceeded), "EXTRACTION_TIMEOUT", 2, true},
		{"scan timeout", NewScanTimeoutError("scan-card", context.DeadlineExceeded), "SCAN_TIMEOUT", 2, true},
		{"ocr failed", NewOCRFailedError("empty response"), "OCR_FAILED", 0, false},
		{"invalid input", NewInvalidInputError("imageBase64 is required"), "INVALID_INPUT", 0, false},
		{"index missing", NewIndexNotFoundError("cards"), "INDEX_NOT_FOUND", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.code, bpmn.Code)
			assert.Equal(t, tt.retries, bpmn.Retries)
			assert.Equal(t, tt.retryable, bpmn.Retryable)

			vars := bpmn.ToErrorVariables()
			assert.Equal(t, tt.code, vars["errorCode"])
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_NonRetryableOverridesCode(t *testing.T) {
	err := NewSearchUnavailableError("postgres", stderrors.New("down"))
	err.Retryable = false
	assert.Equal(t, 0, ConvertToBPMNError(err).Retries)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "EXTRACTION", GetErrorCategory(ErrCodeOCRFailed))
	assert.Equal(t, "EXTRACTION", GetErrorCategory(ErrCodeInvalidImage))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSearchTimeout))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeIndexNotFound))
	assert.Equal(t, "STORAGE", GetErrorCategory(ErrCodeCacheUnavailable))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidExtraction))
	assert.Equal(t, "WORKFLOW", GetErrorCategory(ErrCodeScanTimeout))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

func TestIsRetryableErrorCode(t *testing.T) {
	assert.True(t, IsRetryableErrorCode(ErrCodeCatalogQueryFailed))
	assert.False(t, IsRetryableErrorCode(ErrCodeInvalidExtraction))
}

func TestRemainingRetries(t *testing.T) {
	tests := []struct {
		name    string
		granted int32
		allowed int
		want    int32
	}{
		{"non-retryable code", 3, 0, 0},
		{"last attempt", 1, 3, 0},
		{"broker grants fewer", 2, 3, 1},
		{"code allows fewer", 5, 2, 2},
		{"no retries left", 0, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remainingRetries(tt.granted, tt.allowed))
		})
	}
}

func TestErrorVariables(t *testing.T) {
	bpmn := ConvertToBPMNError(NewSearchTimeoutError("catalog", context.DeadlineExceeded))
	vars := errorVariables(bpmn)
	assert.Contains(t, vars, `"errorCode":"`+bpmn.Code+`"`)
	assert.Contains(t, vars, `"originalErrorCode":"SEARCH_TIMEOUT"`)
	assert.Contains(t, vars, `"retryable":true`)
}
