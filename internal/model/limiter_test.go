package model_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimitedModel_DisabledReturnsModel(t *testing.T) {
	t.Parallel()

	inner := &stubModel{}

	assert.Same(t, inner, model.NewRateLimitedModel(inner, 0))
}

func TestRateLimitedModel_Delegates(t *testing.T) {
	t.Parallel()

	inner := &stubModel{}
	limited := model.NewRateLimitedModel(inner, 100)

	out, err := limited.Generate(context.Background(), []int{1, 2}, core.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRateLimitedModel_HonoursContext(t *testing.T) {
	t.Parallel()

	inner := &stubModel{}
	limited := model.NewRateLimitedModel(inner, 0.001)

	_, err := limited.Generate(context.Background(), nil, core.GenerateParams{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = limited.Generate(ctx, nil, core.GenerateParams{})
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}
