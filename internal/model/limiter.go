package model

import (
	"context"
	"fmt"

	"github.com/book-expert/voice-clone-service/internal/core"
	"golang.org/x/time/rate"
)

// RateLimitedModel waits on a limiter before every generation call.
type RateLimitedModel struct {
	model   core.LanguageModel
	limiter *rate.Limiter
}

// NewRateLimitedModel wraps model. A non-positive perSecond returns model unchanged.
func NewRateLimitedModel(model core.LanguageModel, perSecond float64) core.LanguageModel {
	if perSecond <= 0 {
		return model
	}

	burst := max(int(perSecond), 1)

	return &RateLimitedModel{model: model, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Generate waits for a token from the limiter and then delegates.
func (m *RateLimitedModel) Generate(ctx context.Context, inputIDs []int, params core.GenerateParams) ([]int, error) {
	err := m.limiter.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("generation rate limit: %w", err)
	}

	return m.model.Generate(ctx, inputIDs, params)
}
