package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKeyAndModel(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{APIKey: "sk-test"})
	assert.Error(t, err)
}

func TestClient_Complete_ReturnsFirstChoiceText(t *testing.T) {
	var gotAuth, gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotAuth = r.Header.Get("Authorization")
		gotModel = body.Model
		if len(body.Messages) > 0 {
			gotPrompt = body.Messages[0].Content
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "a tidy summary"}}},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), "summarize today")
	require.NoError(t, err)
	assert.Equal(t, "a tidy summary", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotModel)
	assert.Equal(t, "summarize today", gotPrompt)
}

func TestClient_Complete_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	assert.ErrorContains(t, err, "rate limited")
}

func TestClient_Complete_NoChoicesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hello")
	assert.Error(t, err)
}
