// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MadsRC/llmbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(
		WithClientBaseURL(server.URL),
		WithClientProvisioningKey("sk-or-prov-test"),
		WithClientAttribution("https://example.com/llmbridge", "llmbridge-test"),
	)
	require.NoError(t, err)
	return client, server
}

func TestClient_ListModelsParsesCatalog(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		// The public catalog requires no bearer
		assert.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,
			 "architecture":{"input_modalities":["text","image"]}},
			{"id":"meta-llama/llama-3-70b","name":"Llama 3 70B","context_length":8192,
			 "architecture":{"input_modalities":["text"]}}
		]}`))
	}))

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "openai/gpt-4o", models[0].ID)
	assert.Equal(t, 128000, models[0].ContextLength)
	assert.True(t, models[0].SupportsInput("image"))
	assert.False(t, models[1].SupportsInput("image"))
}

func TestClient_ListKeysUsesProvisioningKey(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/keys", r.URL.Path)
		assert.Equal(t, "Bearer sk-or-prov-test", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"data":[
			{"hash":"abc123","name":"llmbridge-ide-plugin","disabled":false,"usage":1.5,
			 "created_at":"2025-01-02T03:04:05Z"}
		]}`))
	}))

	keys, err := client.ListKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "abc123", keys[0].RemoteID)
	assert.Equal(t, "llmbridge-ide-plugin", keys[0].Label)
	assert.InDelta(t, 1.5, keys[0].Usage, 1e-9)
	require.NotNil(t, keys[0].CreatedAt)
}

func TestClient_CreateKeyReturnsSecretOnce(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/keys", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llmbridge-ide-plugin", body["name"])

		_, _ = w.Write([]byte(`{"key":"sk-or-v1-newsecret","data":{"hash":"def456","name":"llmbridge-ide-plugin"}}`))
	}))

	cred, err := client.CreateKey(context.Background(), "llmbridge-ide-plugin")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-newsecret", cred.Value)
	assert.Equal(t, "def456", cred.RemoteID)
	assert.Equal(t, "llmbridge-ide-plugin", cred.Label)
}

func TestClient_CreateKeyMissingSecretIsError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"hash":"def456"}}`))
	}))

	_, err := client.CreateKey(context.Background(), "llmbridge-ide-plugin")
	require.Error(t, err)
}

func TestClient_DeleteKey(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/keys/abc123", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"deleted":true}}`))
	}))

	deleted, err := client.DeleteKey(context.Background(), "abc123")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestClient_NonSuccessStatusBecomesAPIError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"provisioning key invalid"}}`))
	}))

	_, err := client.ListKeys(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "provisioning key invalid")
}

func TestClient_ChatCompletionForwardsWithDelegatedBearer(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-or-v1-delegated", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.com/llmbridge", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "llmbridge-test", r.Header.Get("X-Title"))

		var req llmbridge.UpstreamChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "x", req.Model)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.7, *req.Temperature, 1e-9)

		_, _ = w.Write([]byte(`{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))

	temp := 0.7
	resp, err := client.ChatCompletion(context.Background(), "sk-or-v1-delegated", &llmbridge.UpstreamChatRequest{
		Model:       "x",
		Messages:    []llmbridge.ChatMessage{llmbridge.TextMessage("user", "hi")},
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gen-1")
}
