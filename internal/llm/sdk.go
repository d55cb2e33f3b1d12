package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// SDKClient sends chat completions through the go-openai client.
type SDKClient struct {
	client *openai.Client
}

func NewSDKClient(baseURL, apiKey string) *SDKClient {
	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &SDKClient{client: openai.NewClientWithConfig(config)}
}

func (s *SDKClient) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (Completion, error) {
	sdkRequest := openai.ChatCompletionRequest{
		Model:               request.Model,
		MaxCompletionTokens: request.MaxCompletionTokens,
	}
	if request.Temperature != nil {
		sdkRequest.Temperature = float32(*request.Temperature)
	}
	for _, message := range request.Messages {
		sdkRequest.Messages = append(sdkRequest.Messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}

	response, err := s.client.CreateChatCompletion(ctx, sdkRequest)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Completion{}, &HTTPError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return Completion{}, errors.New("chat completion returned no choices")
	}

	choice := response.Choices[0]
	truncated := choice.FinishReason == openai.FinishReasonLength
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" && !truncated {
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return Completion{}, fmt.Errorf("chat completion refusal: %s", refusal)
		}
		return Completion{}, errors.New("chat completion returned empty message")
	}
	return Completion{Text: text, TotalTokens: response.Usage.TotalTokens, Truncated: truncated}, nil
}
