// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !integration && !acceptance

package pipeline

import (
	"testing"

	"github.com/MadsRC/llmbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imagePart(url string) llmbridge.ContentPart {
	return llmbridge.ContentPart{Type: "image_url", ImageURL: &llmbridge.ImageURL{URL: url}}
}

func audioPart() llmbridge.ContentPart {
	return llmbridge.ContentPart{Type: "input_audio", InputAudio: &llmbridge.InputAudio{Data: "UklGRg==", Format: "wav"}}
}

func TestClassifyMessages_TextOnlyYieldsNothing(t *testing.T) {
	messages := []llmbridge.ChatMessage{
		llmbridge.TextMessage("system", "You are helpful."),
		llmbridge.TextMessage("user", "hi"),
	}

	tags := ClassifyMessages(messages)
	assert.Empty(t, tags)
}

func TestClassifyMessages_PartMapping(t *testing.T) {
	tests := []struct {
		name     string
		partType string
		want     Modality
	}{
		{"image_url maps to image", "image_url", ModalityImage},
		{"input_audio maps to audio", "input_audio", ModalityAudio},
		{"bare audio maps to audio", "audio", ModalityAudio},
		{"video_url maps to video", "video_url", ModalityVideo},
		{"bare video maps to video", "video", ModalityVideo},
		{"file maps to file", "file", ModalityFile},
		{"document maps to file", "document", ModalityFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages := []llmbridge.ChatMessage{
				llmbridge.PartsMessage("user", llmbridge.ContentPart{Type: tt.partType}),
			}
			tags := ClassifyMessages(messages)
			require.Len(t, tags, 1)
			assert.True(t, tags.Has(tt.want))
		})
	}
}

func TestClassifyMessages_UnknownPartTypesIgnored(t *testing.T) {
	messages := []llmbridge.ChatMessage{
		llmbridge.PartsMessage("user",
			llmbridge.ContentPart{Type: "text", Text: "describe this"},
			llmbridge.ContentPart{Type: "holographic_scan"},
			imagePart("https://example.com/cat.png"),
		),
	}

	tags := ClassifyMessages(messages)
	assert.Len(t, tags, 1)
	assert.True(t, tags.Has(ModalityImage))
}

func TestClassifyMessages_DeduplicatesAndIgnoresOrder(t *testing.T) {
	forward := []llmbridge.ChatMessage{
		llmbridge.PartsMessage("user", imagePart("https://a.example/1.png"), audioPart()),
		llmbridge.PartsMessage("user", imagePart("https://a.example/2.png")),
	}
	reversed := []llmbridge.ChatMessage{forward[1], forward[0]}

	first := ClassifyMessages(forward)
	second := ClassifyMessages(reversed)

	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
	assert.True(t, first.Has(ModalityImage))
	assert.True(t, first.Has(ModalityAudio))
}

func TestClassifyMessages_PureAndRepeatable(t *testing.T) {
	messages := []llmbridge.ChatMessage{
		llmbridge.PartsMessage("user", imagePart("data:image/png;base64,iVBOR")),
	}

	assert.Equal(t, ClassifyMessages(messages), ClassifyMessages(messages))
}
