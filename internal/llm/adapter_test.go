package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/temirov/pktables/internal/pipeline"
)

type recordingCompleter struct {
	requests []ChatCompletionRequest
	reply    Completion
}

func (r *recordingCompleter) CreateChatCompletion(ctx context.Context, request ChatCompletionRequest) (Completion, error) {
	r.requests = append(r.requests, request)
	return r.reply, nil
}

func TestAdapterSendsHistoryInOrder(t *testing.T) {
	backend := &recordingCompleter{reply: Completion{Text: "<<[1]>>", TotalTokens: 9, Truncated: true}}
	adapter := Adapter{Client: backend, DefaultModel: "default-model", DefaultTokens: 256}

	resp, err := adapter.Chat(context.Background(), pipeline.LLMRequest{
		SystemPrompt: "system",
		UserPrompt:   " user ",
		History: []pipeline.Message{
			{Role: pipeline.RoleAssistant, Content: "first answer"},
			{Role: pipeline.RoleUser, Content: "REFINE:\nfix it"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.LLMResponse{RawText: "<<[1]>>", TokenUsage: 9, Truncated: true}, resp)

	require.Len(t, backend.requests, 1)
	sent := backend.requests[0]
	assert.Equal(t, "default-model", sent.Model)
	assert.Equal(t, 256, sent.MaxCompletionTokens)
	assert.Nil(t, sent.Temperature)
	assert.Equal(t, []ChatMessage{
		{Role: "system", Content: "system"},
		{Role: "user", Content: "user"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "REFINE:\nfix it"},
	}, sent.Messages)
}

func TestAdapterTemperature(t *testing.T) {
	backend := &recordingCompleter{reply: Completion{Text: "ok"}}
	adapter := Adapter{Client: backend, DefaultTemp: 1}

	_, err := adapter.Chat(context.Background(), pipeline.LLMRequest{UserPrompt: "u", Temperature: 0.2, Model: "m"})
	require.NoError(t, err)
	_, err = adapter.Chat(context.Background(), pipeline.LLMRequest{UserPrompt: "u", Model: "m"})
	require.NoError(t, err)

	require.NotNil(t, backend.requests[0].Temperature)
	assert.InDelta(t, 0.2, *backend.requests[0].Temperature, 1e-9)
	assert.Nil(t, backend.requests[1].Temperature)
}

func TestAdapterOverHTTP(t *testing.T) {
	var received ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/chat/completions", request.URL.Path)
		assert.Equal(t, "Bearer test", request.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(request.Body).Decode(&received))
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]any{"content": "<<True>>", "role": "assistant"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"total_tokens": 17},
		})
	}))
	defer server.Close()

	adapter := Adapter{Client: Client{HTTPBaseURL: server.URL, APIKey: "test"}, DefaultModel: "m"}
	resp, err := adapter.Chat(context.Background(), pipeline.LLMRequest{SystemPrompt: "s", UserPrompt: "u", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "<<True>>", resp.RawText)
	assert.Equal(t, 17, resp.TokenUsage)
	assert.Equal(t, 64, received.MaxCompletionTokens)
	assert.Len(t, received.Messages, 2)
}

func TestAdapterRateLimiterHonoursContext(t *testing.T) {
	backend := &recordingCompleter{reply: Completion{Text: "ok"}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	adapter := Adapter{Client: backend, Limiter: limiter}

	_, err := adapter.Chat(context.Background(), pipeline.LLMRequest{UserPrompt: "u"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = adapter.Chat(ctx, pipeline.LLMRequest{UserPrompt: "u"})
	require.Error(t, err)
	assert.Len(t, backend.requests, 1)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	limiter := NewLimiter(120)
	require.NotNil(t, limiter)
	assert.InDelta(t, 2.0, float64(limiter.Limit()), 1e-9)
}
