package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/config"
)

func TestClient_GenerateResponse(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"corrected_sql\": \"SELECT 1;\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL + "/v1/", Model: "test-model", APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "fix this", "you fix SQL", 0)
	require.NoError(t, err)

	assert.Equal(t, `{"corrected_sql": "SELECT 1;"}`, result.Content)
	assert.Equal(t, 12, result.PromptTokens)
	assert.Equal(t, 7, result.CompletionTokens)
	assert.Equal(t, 19, result.TotalTokens)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "you fix SQL", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "fix this", got.Messages[1].Content)
}

func TestClient_GenerateResponse_ClassifiesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "test-model"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0)
	require.Error(t, err)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeRateLimited, llmErr.Type)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, "test-model", llmErr.Model)
	assert.Equal(t, server.URL, llmErr.Endpoint)
}

func TestNewClient_RequiresEndpointAndModel(t *testing.T) {
	_, err := NewClient(&Config{Model: "m"}, zap.NewNop())
	assert.ErrorContains(t, err, "endpoint is required")

	_, err = NewClient(&Config{Endpoint: "http://localhost:8000/v1"}, zap.NewNop())
	assert.ErrorContains(t, err, "model is required")
}

func TestAnthropicClient_GenerateResponse(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "SELECT title "}, {"type": "text", "text": "FROM jobs;"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL, Model: "claude-test", APIKey: "sk-ant-test"}, zap.NewNop())
	require.NoError(t, err)

	result, err := client.GenerateResponse(context.Background(), "fix this", "you fix SQL", 0)
	require.NoError(t, err)

	assert.Equal(t, "SELECT title FROM jobs;", result.Content)
	assert.Equal(t, 26, result.TotalTokens)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, "you fix SQL", got.System)
	assert.Equal(t, defaultAnthropicMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestAnthropicClient_Overloaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL, Model: "claude-test", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateResponse(context.Background(), "p", "s", 0)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrorTypeOverloaded, llmErr.Type)
	assert.True(t, llmErr.Retryable)
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	client, err := NewAnthropicClient(&Config{Model: "claude-test", APIKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicEndpoint, client.GetEndpoint())
	assert.Equal(t, "claude-test", client.GetModel())

	_, err = NewAnthropicClient(&Config{Model: "claude-test"}, zap.NewNop())
	assert.ErrorContains(t, err, "api key is required")
}

func TestClientFactory_Create(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		want    any
		wantErr string
	}{
		{
			name: "openai compatible",
			cfg:  config.LLMConfig{Provider: ProviderOpenAI, BaseURL: "http://localhost:11434/v1", Model: "qwen"},
			want: &Client{},
		},
		{
			name: "anthropic",
			cfg:  config.LLMConfig{Provider: ProviderAnthropic, Model: "claude-test", APIKey: "k"},
			want: &AnthropicClient{},
		},
		{
			name:    "openai missing model",
			cfg:     config.LLMConfig{Provider: ProviderOpenAI, BaseURL: "http://localhost/v1"},
			wantErr: "create openai client",
		},
		{
			name:    "disabled",
			cfg:     config.LLMConfig{Provider: ProviderNone},
			wantErr: "no llm provider configured",
		},
		{
			name:    "unknown",
			cfg:     config.LLMConfig{Provider: "bard"},
			wantErr: `unknown llm provider "bard"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClientFactory(tt.cfg, zap.NewNop()).Create()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
		})
	}
}

func TestMockLLMClient(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temperature float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: strings.ToUpper(prompt)}, nil
	}

	res, err := mock.GenerateResponse(context.Background(), "select", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "SELECT", res.Content)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, []string{"select"}, mock.Prompts())

	mock.Reset()
	assert.Zero(t, mock.Calls())
	assert.Equal(t, "mock-model", mock.GetModel())
}
