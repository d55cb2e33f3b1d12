package llm

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/temirov/pktables/internal/pipeline"
)

// Adapter adapts pipeline.LLMRequest to a concrete completion backend.
type Adapter struct {
	Client        Completer
	DefaultModel  string
	DefaultTemp   float64
	DefaultTokens int
	// Limiter, when set, paces calls across every run sharing the adapter.
	Limiter *rate.Limiter
}

// NewLimiter allows requestsPerMinute calls per minute with a burst of one.
// Zero or less means unlimited.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
}

func (a Adapter) Chat(ctx context.Context, req pipeline.LLMRequest) (pipeline.LLMResponse, error) {
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return pipeline.LLMResponse{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = a.DefaultModel
	}

	cr := ChatCompletionRequest{
		Model:               model,
		MaxCompletionTokens: chooseInt(req.MaxTokens, a.DefaultTokens),
	}
	for _, message := range req.Messages() {
		cr.Messages = append(cr.Messages, ChatMessage{Role: message.Role, Content: strings.TrimSpace(message.Content)})
	}

	// Many 2025 models only allow the default temperature (1). If the resolved
	// temperature is 0 or 1, we omit it (let server default).
	resolvedTemp := chooseFloat(req.Temperature, a.DefaultTemp)
	if resolvedTemp != 0 && resolvedTemp != 1 {
		cr.Temperature = &resolvedTemp
	}

	out, err := a.Client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return pipeline.LLMResponse{}, err
	}
	return pipeline.LLMResponse{RawText: out.Text, TokenUsage: out.TotalTokens, Truncated: out.Truncated}, nil
}

func chooseInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func chooseFloat(a, b float64) float64 {
	if a > 0 {
		return a
	}
	return b
}
