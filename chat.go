// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package llmbridge

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ChatRequest is the inbound chat-completion request in the well-known
// OpenAI-style JSON shape. Optional numeric fields are pointers so that
// "absent" and "zero" remain distinguishable during translation.
type ChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	User             string        `json:"user,omitempty"`
}

// UpstreamChatRequest is the request shape sent to the model-routing API.
// The model identifier is carried through as supplied by the caller; no
// model-name rewriting happens anywhere in this module.
type UpstreamChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int          `json:"max_tokens,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	Stop             []string      `json:"stop,omitempty"`
	Stream           bool          `json:"stream"`
	User             string        `json:"user,omitempty"`
}

// ChatMessage is a single inbound message. Content is either a JSON string
// or an array of content parts; it is kept raw so that content-part kinds
// this module does not know about survive a round trip untouched.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
}

// ContentPart is one element of an array-typed message content. Exactly one
// payload field is populated per type; unrecognized types decode with only
// the Type field set and are ignored by callers.
type ContentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *ImageURL   `json:"image_url,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
	VideoURL   *VideoURL   `json:"video_url,omitempty"`
	File       *FilePart   `json:"file,omitempty"`
}

// ImageURL carries an image reference (https URL or data URI)
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// InputAudio carries base64 audio data and its container format
type InputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format,omitempty"`
}

// VideoURL carries a video reference (https URL or data URI)
type VideoURL struct {
	URL string `json:"url"`
}

// FilePart carries a file attachment reference
type FilePart struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

// Text returns the message content as a plain string. The second return is
// false when the content is absent or array-typed.
func (m *ChatMessage) Text() (string, bool) {
	if len(m.Content) == 0 {
		return "", false
	}
	trimmed := bytes.TrimSpace(m.Content)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// Parts returns the message content as content parts. The second return is
// false when the content is absent, string-typed, or not valid JSON.
func (m *ChatMessage) Parts() ([]ContentPart, bool) {
	if len(m.Content) == 0 {
		return nil, false
	}
	trimmed := bytes.TrimSpace(m.Content)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil, false
	}
	return parts, true
}

// HasContent reports whether the message carries usable content: a
// non-blank string or a non-empty part array.
func (m *ChatMessage) HasContent() bool {
	if s, ok := m.Text(); ok {
		return strings.TrimSpace(s) != ""
	}
	if parts, ok := m.Parts(); ok {
		return len(parts) > 0
	}
	return false
}

// TextMessage builds a string-content message. Mostly useful in tests and
// for synthetic system prompts.
func TextMessage(role, text string) ChatMessage {
	content, _ := json.Marshal(text)
	return ChatMessage{Role: role, Content: content}
}

// PartsMessage builds an array-content message from the given parts.
func PartsMessage(role string, parts ...ContentPart) ChatMessage {
	content, _ := json.Marshal(parts)
	return ChatMessage{Role: role, Content: content}
}
