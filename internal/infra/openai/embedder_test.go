package openai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/news-rag/internal/core/embedding"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedderDefaults(t *testing.T) {
	embedder := NewEmbedder("dummy-key")

	assert.Equal(t, DefaultEmbeddingModel, embedder.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, embedder.Dimension())
}

func TestWrapAPIError_WrapsWithStatus(t *testing.T) {
	apiErr := &openai.Error{StatusCode: 429}

	wrapped := wrapAPIError("failed", fmt.Errorf("request failed: %w", apiErr))

	var statusErr embedding.StatusError
	require.True(t, errors.As(wrapped, &statusErr))
	assert.Equal(t, 429, statusErr.HTTPStatus())
	assert.True(t, errors.Is(wrapped, apiErr))
}

func TestWrapAPIError_WrapsNonAPIErrorAsIs(t *testing.T) {
	cause := errors.New("network down")

	wrapped := wrapAPIError("failed", cause)

	var statusErr embedding.StatusError
	assert.False(t, errors.As(wrapped, &statusErr))
	assert.True(t, errors.Is(wrapped, cause))
}
