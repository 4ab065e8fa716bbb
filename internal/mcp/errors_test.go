package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/kbforge/kbmcp/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_KBErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			"all sources unavailable",
			kberrors.New(kberrors.ErrCodeAllSourcesUnavailable, "all retrieval sources failed", nil),
			ErrCodeSourcesUnavailable,
		},
		{
			"embedding failed",
			kberrors.New(kberrors.ErrCodeEmbeddingFailed, "embedding failed", nil),
			ErrCodeEmbeddingFailed,
		},
		{
			"source unavailable",
			kberrors.New(kberrors.ErrCodeSourceUnavailable, "ollama down", nil),
			ErrCodeEmbeddingFailed,
		},
		{
			"network timeout",
			kberrors.New(kberrors.ErrCodeNetworkTimeout, "timed out", nil),
			ErrCodeTimeout,
		},
		{
			"document not found",
			kberrors.New(kberrors.ErrCodeDocumentNotFound, "no such document", nil),
			ErrCodeDocumentNotFound,
		},
		{
			"empty query",
			kberrors.New(kberrors.ErrCodeQueryEmpty, "search query is empty", nil),
			ErrCodeInvalidParams,
		},
		{
			"unknown strategy",
			kberrors.New(kberrors.ErrCodeUnknownStrategy, "unknown split strategy", nil),
			ErrCodeInvalidParams,
		},
		{
			"search failed",
			kberrors.New(kberrors.ErrCodeSearchFailed, "failed to load passages", nil),
			ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mcpErr := MapError(tt.err)
			require.NotNil(t, mcpErr)
			assert.Equal(t, tt.wantCode, mcpErr.Code)
		})
	}
}

func TestMapError_SuggestionFoldedIntoMessage(t *testing.T) {
	err := kberrors.New(kberrors.ErrCodeUnknownStrategy, "unknown split strategy", nil).
		WithSuggestion("use punctuation or window")

	mcpErr := MapError(err)

	require.NotNil(t, mcpErr)
	assert.Contains(t, mcpErr.Message, "unknown split strategy")
	assert.Contains(t, mcpErr.Message, "use punctuation or window")
}

func TestMapError_WrappedKBErrorUnwraps(t *testing.T) {
	inner := kberrors.New(kberrors.ErrCodeQueryEmpty, "search query is empty", nil)
	wrapped := fmt.Errorf("handling request: %w", inner)

	mcpErr := MapError(wrapped)

	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestMapError_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeTimeout, MapError(context.Canceled).Code)
}

func TestMapError_UnknownErrorIsInternal(t *testing.T) {
	mcpErr := MapError(errors.New("boom"))

	require.NotNil(t, mcpErr)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
	assert.Equal(t, "Internal server error.", mcpErr.Message)
}

func TestMCPError_ErrorString(t *testing.T) {
	err := NewInvalidParamsError("query is required")
	assert.Equal(t, "MCP error -32602: query is required", err.Error())
}
