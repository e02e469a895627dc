// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/MadsRC/llmbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptor_AcceptsPlainTextRequest(t *testing.T) {
	acceptor := NewAcceptor()

	var req llmbridge.ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"x","messages":[{"role":"user","content":"hi"}]}`), &req))

	decision := acceptor.Accept(context.Background(), &req)
	accepted, ok := decision.(Accepted)
	require.True(t, ok)
	assert.NotEmpty(t, accepted.RequestID)
	assert.Equal(t, "x", accepted.Request.Model)
	require.NotNil(t, accepted.Request.Temperature)
	assert.InDelta(t, 0.7, *accepted.Request.Temperature, 1e-9)
	assert.False(t, accepted.Request.Stream)
	assert.Nil(t, accepted.Request.MaxTokens)
}

func TestAcceptor_RejectsUnsupportedModalityBeforeTranslation(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/text-model":   textOnlyModel("vendor/text-model"),
		"vendor/vision-model": {ID: "vendor/vision-model", InputModalities: []string{"text", "image"}},
	}}
	favorites := &mockFavorites{ids: []string{"vendor/vision-model"}, lookup: lookup}
	acceptor := NewAcceptor(
		WithAcceptorValidator(NewValidator(
			WithValidatorLookup(lookup),
			WithValidatorFavorites(favorites),
		)),
	)

	req := &llmbridge.ChatRequest{
		Model: "vendor/text-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("http://example.com/x.png")),
		},
	}

	decision := acceptor.Accept(context.Background(), req)
	rejected, ok := decision.(Rejected)
	require.True(t, ok)
	assert.Contains(t, rejected.UserMessage, "vendor/vision-model")
}

func TestAcceptor_RejectsInvalidTranslation(t *testing.T) {
	acceptor := NewAcceptor()

	req := &llmbridge.ChatRequest{
		Model:       "x",
		Messages:    []llmbridge.ChatMessage{llmbridge.TextMessage("user", "hi")},
		Temperature: floatPtr(2.1),
	}

	decision := acceptor.Accept(context.Background(), req)
	rejected, ok := decision.(Rejected)
	require.True(t, ok)
	assert.Contains(t, rejected.UserMessage, "temperature")
}

func TestAcceptor_ConfiguredDefaultMaxTokensAppears(t *testing.T) {
	acceptor := NewAcceptor(WithAcceptorTranslator(NewTranslator(8000)))

	decision := acceptor.Accept(context.Background(), simpleRequest())
	accepted, ok := decision.(Accepted)
	require.True(t, ok)
	require.NotNil(t, accepted.Request.MaxTokens)
	assert.Equal(t, 8000, *accepted.Request.MaxTokens)
}
