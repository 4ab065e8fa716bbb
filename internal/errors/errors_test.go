package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKBError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with KBError
	kbErr := New(ErrCodeFileNotFound, "file not found: notes.md", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, kbErr)
	assert.Equal(t, originalErr, errors.Unwrap(kbErr))
	assert.True(t, errors.Is(kbErr, originalErr))
}

func TestKBError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "strategy error",
			code:     ErrCodeUnknownStrategy,
			message:  "unknown split strategy: semantic",
			expected: "[ERR_402_UNKNOWN_STRATEGY] unknown split strategy: semantic",
		},
		{
			name:     "source error",
			code:     ErrCodeSourceUnavailable,
			message:  "bm25 search failed",
			expected: "[ERR_302_SOURCE_UNAVAILABLE] bm25 search failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestKBError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeUnknownStrategy, "unknown strategy: foo", nil)
	err2 := New(ErrCodeUnknownStrategy, "unknown strategy: bar", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
}

func TestKBError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	// Given: two errors with different codes
	err1 := New(ErrCodeFileNotFound, "file not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	// Then: they don't match
	assert.False(t, errors.Is(err1, err2))
}

func TestKBError_WithDetail_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeDocumentNotFound, "document not found", nil)

	// When: adding details
	err = err.WithDetail("document_id", "doc-42").WithDetail("operation", "delete")

	// Then: details are retained
	require.NotNil(t, err.Details)
	assert.Equal(t, "doc-42", err.Details["document_id"])
	assert.Equal(t, "delete", err.Details["operation"])
}

func TestKBError_CategoryDerivedFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeAllSourcesUnavailable, CategoryNetwork},
		{ErrCodeInvalidParameter, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestKBError_RetryableAndSeverity(t *testing.T) {
	// Given: a retryable embedding failure
	retryable := New(ErrCodeEmbeddingFailed, "embed batch failed", nil)
	assert.True(t, IsRetryable(retryable))
	assert.Equal(t, SeverityWarning, retryable.Severity)

	// Given: a fatal total-outage error
	fatal := New(ErrCodeAllSourcesUnavailable, "all retrieval sources failed", nil)
	assert.False(t, IsRetryable(fatal))
	assert.True(t, IsFatal(fatal))

	// Given: a degraded single-source failure
	degraded := New(ErrCodeSourceUnavailable, "vec search failed", nil)
	assert.Equal(t, SeverityWarning, degraded.Severity)
	assert.False(t, IsFatal(degraded))
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestGetCode_NonKBErrorReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, ErrCodeQueryEmpty, GetCode(New(ErrCodeQueryEmpty, "empty query", nil)))
}
