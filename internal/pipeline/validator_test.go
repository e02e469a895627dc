// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package pipeline

import (
	"fmt"
	"testing"

	"github.com/MadsRC/llmbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	models map[string]llmbridge.ModelCapabilities
	calls  int
}

func (m *mockLookup) Lookup(modelID string) (*llmbridge.ModelCapabilities, bool) {
	m.calls++
	model, ok := m.models[modelID]
	if !ok {
		return nil, false
	}
	return &model, true
}

type mockFavorites struct {
	ids    []string
	lookup *mockLookup
}

func (m *mockFavorites) FavoriteModelIDs() []string {
	return m.ids
}

func (m *mockFavorites) CachedModelByID(id string) (*llmbridge.ModelCapabilities, bool) {
	model, ok := m.lookup.models[id]
	if !ok {
		return nil, false
	}
	return &model, true
}

func textOnlyModel(id string) llmbridge.ModelCapabilities {
	return llmbridge.ModelCapabilities{ID: id, InputModalities: []string{"text"}}
}

func TestValidator_TextOnlyFastPathSkipsLookup(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{}}
	validator := NewValidator(WithValidatorLookup(lookup))

	req := &llmbridge.ChatRequest{
		Model:    "meta-llama/llama-3-70b",
		Messages: []llmbridge.ChatMessage{llmbridge.TextMessage("user", "hi")},
	}

	outcome := validator.Validate(req, "req-1")
	assert.IsType(t, Valid{}, outcome)
	assert.Zero(t, lookup.calls, "capability index must not be consulted for text-only requests")
}

func TestValidator_UnknownModelPassesOptimistically(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{}}
	validator := NewValidator(WithValidatorLookup(lookup))

	req := &llmbridge.ChatRequest{
		Model: "vendor/unlisted-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("https://example.com/x.png"), audioPart()),
		},
	}

	outcome := validator.Validate(req, "req-1")
	assert.IsType(t, Valid{}, outcome)
	assert.Equal(t, 1, lookup.calls)
}

func TestValidator_FirstUnsupportedModalityWins(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/text-model": textOnlyModel("vendor/text-model"),
	}}
	validator := NewValidator(WithValidatorLookup(lookup))

	// Audio part listed before the image part; the fixed check order still
	// reports the image violation.
	req := &llmbridge.ChatRequest{
		Model: "vendor/text-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", audioPart(), imagePart("https://example.com/x.png")),
		},
	}

	outcome := validator.Validate(req, "req-1")
	invalid, ok := outcome.(Invalid)
	require.True(t, ok)
	assert.Equal(t, ModalityImage, invalid.Modality)
	assert.Equal(t, "vendor/text-model", invalid.ModelID)
	assert.NotEmpty(t, invalid.Message)
}

func TestValidator_SupportedModalitiesPass(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/vision-model": {ID: "vendor/vision-model", InputModalities: []string{"text", "Image"}},
	}}
	validator := NewValidator(WithValidatorLookup(lookup))

	req := &llmbridge.ChatRequest{
		Model: "vendor/vision-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("https://example.com/x.png")),
		},
	}

	// Capability matching is case-insensitive
	assert.IsType(t, Valid{}, validator.Validate(req, "req-1"))
}

func TestValidator_FileSatisfiedByDocumentCapability(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/doc-model": {ID: "vendor/doc-model", InputModalities: []string{"text", "document"}},
	}}
	validator := NewValidator(WithValidatorLookup(lookup))

	req := &llmbridge.ChatRequest{
		Model: "vendor/doc-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", llmbridge.ContentPart{Type: "file", File: &llmbridge.FilePart{Filename: "a.pdf"}}),
		},
	}

	assert.IsType(t, Valid{}, validator.Validate(req, "req-1"))
}

func TestValidator_RejectionSuggestsQualifyingFavorites(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/text-model":   textOnlyModel("vendor/text-model"),
		"vendor/vision-model": {ID: "vendor/vision-model", InputModalities: []string{"text", "image"}},
	}}
	favorites := &mockFavorites{ids: []string{"vendor/vision-model"}, lookup: lookup}
	validator := NewValidator(WithValidatorLookup(lookup), WithValidatorFavorites(favorites))

	req := &llmbridge.ChatRequest{
		Model: "vendor/text-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("http://example.com/x.png")),
		},
	}

	invalid, ok := validator.Validate(req, "req-1").(Invalid)
	require.True(t, ok)
	assert.Contains(t, invalid.Message, "vendor/vision-model")
	assert.Contains(t, invalid.Message, ModelDocsURL)
}

func TestValidator_FavoritesOrderPreservedAndCapped(t *testing.T) {
	models := map[string]llmbridge.ModelCapabilities{
		"vendor/text-model": textOnlyModel("vendor/text-model"),
	}
	var ids []string
	for i := range 7 {
		id := fmt.Sprintf("vendor/vision-%d", i)
		models[id] = llmbridge.ModelCapabilities{ID: id, InputModalities: []string{"text", "image"}}
		ids = append(ids, id)
	}
	lookup := &mockLookup{models: models}
	favorites := &mockFavorites{ids: ids, lookup: lookup}
	validator := NewValidator(WithValidatorLookup(lookup), WithValidatorFavorites(favorites))

	got := validator.qualifyingFavorites(ModalityImage)
	require.Len(t, got, 5)
	assert.Equal(t, ids[:5], got, "favorites order must be preserved, not re-sorted")
}

func TestValidator_StaticFallbackWhenNoFavoriteQualifies(t *testing.T) {
	lookup := &mockLookup{models: map[string]llmbridge.ModelCapabilities{
		"vendor/text-model": textOnlyModel("vendor/text-model"),
		"vendor/other-text": textOnlyModel("vendor/other-text"),
	}}
	favorites := &mockFavorites{ids: []string{"vendor/other-text", "vendor/not-cached"}, lookup: lookup}
	validator := NewValidator(WithValidatorLookup(lookup), WithValidatorFavorites(favorites))

	req := &llmbridge.ChatRequest{
		Model: "vendor/text-model",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("http://example.com/x.png")),
		},
	}

	invalid, ok := validator.Validate(req, "req-1").(Invalid)
	require.True(t, ok)
	for _, suggestion := range staticSuggestions[ModalityImage] {
		assert.Contains(t, invalid.Message, suggestion)
	}
}

func TestValidator_NoLookupConfiguredDegradesToValid(t *testing.T) {
	validator := NewValidator()

	req := &llmbridge.ChatRequest{
		Model: "vendor/anything",
		Messages: []llmbridge.ChatMessage{
			llmbridge.PartsMessage("user", imagePart("http://example.com/x.png")),
		},
	}

	assert.IsType(t, Valid{}, validator.Validate(req, "req-1"))
}
