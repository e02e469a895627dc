// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"fmt"
	"strings"

	"github.com/MadsRC/llmbridge"
)

// DefaultTemperature is injected when the inbound request omits temperature
const DefaultTemperature = 0.7

// Translator maps the inbound chat-completion shape onto the upstream
// request shape. The model identifier passes through unchanged; the caller
// is responsible for supplying a provider-qualified id.
type Translator struct {
	// defaultMaxTokens, when > 0, is injected into requests that omit
	// max_tokens. At <= 0 the field stays absent and the upstream applies
	// its own default.
	defaultMaxTokens int
}

func NewTranslator(defaultMaxTokens int) *Translator {
	return &Translator{defaultMaxTokens: defaultMaxTokens}
}

// Translate builds the outbound request. Messages are carried through with
// their raw content intact so unknown content-part kinds survive the trip.
func (t *Translator) Translate(req *llmbridge.ChatRequest) *llmbridge.UpstreamChatRequest {
	out := &llmbridge.UpstreamChatRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		Stream:           req.Stream,
		User:             req.User,
	}

	if out.Temperature == nil {
		temp := DefaultTemperature
		out.Temperature = &temp
	}

	if out.MaxTokens == nil && t.defaultMaxTokens > 0 {
		tokens := t.defaultMaxTokens
		out.MaxTokens = &tokens
	}

	return out
}

// ValidateTranslated is the fail-fast local mirror of the upstream's own
// request validation. A nil return means the request may go out; any error
// is a local rejection that never reaches the network.
func ValidateTranslated(out *llmbridge.UpstreamChatRequest) error {
	if strings.TrimSpace(out.Model) == "" {
		return fmt.Errorf("%w: model must not be blank", llmbridge.ErrInvalidRequest)
	}
	if len(out.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", llmbridge.ErrInvalidRequest)
	}
	for i, msg := range out.Messages {
		if strings.TrimSpace(msg.Role) == "" {
			return fmt.Errorf("%w: message %d has a blank role", llmbridge.ErrInvalidRequest, i)
		}
		if !msg.HasContent() {
			return fmt.Errorf("%w: message %d has empty content", llmbridge.ErrInvalidRequest, i)
		}
	}
	if out.Temperature != nil && (*out.Temperature < 0 || *out.Temperature > 2) {
		return fmt.Errorf("%w: temperature %v is outside [0, 2]", llmbridge.ErrInvalidRequest, *out.Temperature)
	}
	if out.MaxTokens != nil && *out.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be greater than zero", llmbridge.ErrInvalidRequest)
	}
	if out.TopP != nil && (*out.TopP < 0 || *out.TopP > 1) {
		return fmt.Errorf("%w: top_p %v is outside [0, 1]", llmbridge.ErrInvalidRequest, *out.TopP)
	}
	return nil
}
