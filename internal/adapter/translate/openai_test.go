package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)

		resp := openai.ChatCompletionResponse{
			Model: req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Translate(t *testing.T) {
	srv := chatServer(t, "  Stones were thrown at a refugee shelter.\n")

	c, err := NewOpenAIClient("test-key", srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	out, err := c.Translate(context.Background(), "Auf eine Flüchtlingsunterkunft wurden Steine geworfen.")
	require.NoError(t, err)
	assert.Equal(t, "Stones were thrown at a refugee shelter.", out)
}

func TestOpenAIClient_EmptyReply(t *testing.T) {
	srv := chatServer(t, "   ")

	c, err := NewOpenAIClient("test-key", srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	_, err = c.Translate(context.Background(), "Hallo")
	require.Error(t, err)
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", srv.URL, "", 5*time.Second)
	require.NoError(t, err)

	_, err = c.Translate(context.Background(), "Hallo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API error")
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "", time.Second)
	require.Error(t, err)
}
