// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MadsRC/llmbridge"
)

// CapabilityLookup is the read side of the model capability index. A false
// return means "capabilities unknown" and the validator passes the request
// through optimistically; the upstream performs the authoritative check.
type CapabilityLookup interface {
	Lookup(modelID string) (*llmbridge.ModelCapabilities, bool)
}

// ModelDocsURL is appended to every rejection message so users can check
// the public catalog themselves.
const ModelDocsURL = "https://openrouter.ai/models"

// maxSuggestions bounds how many favorite models a rejection message lists
const maxSuggestions = 5

// capabilityStrings maps a detected modality to the capability strings that
// satisfy it. FILE is satisfiable by either "file" or "document"; catalogs
// are not consistent about which they declare.
var capabilityStrings = map[Modality][]string{
	ModalityImage: {"image"},
	ModalityAudio: {"audio"},
	ModalityVideo: {"video"},
	ModalityFile:  {"file", "document"},
}

// staticSuggestions is the fallback shown when none of the caller's
// favorites support the needed modality.
var staticSuggestions = map[Modality][]string{
	ModalityImage: {"openai/gpt-4o", "google/gemini-2.0-flash-001", "anthropic/claude-3.5-sonnet"},
	ModalityAudio: {"google/gemini-2.0-flash-001", "openai/gpt-4o-audio-preview"},
	ModalityVideo: {"google/gemini-2.0-flash-001"},
	ModalityFile:  {"google/gemini-2.0-flash-001", "anthropic/claude-3.5-sonnet"},
}

// Outcome is the result of capability validation: exactly one of Valid or
// Invalid. Invalid carries a fully rendered user-facing message so the thin
// caller needs no further logic.
type Outcome interface {
	isOutcome()
}

type Valid struct{}

type Invalid struct {
	Modality Modality
	ModelID  string
	Message  string
}

func (Valid) isOutcome()   {}
func (Invalid) isOutcome() {}

type Validator struct {
	options *validatorOptions
}

type validatorOptions struct {
	Logger    *slog.Logger
	Lookup    CapabilityLookup
	Favorites llmbridge.FavoritesProvider
}

type ValidatorOption interface {
	apply(*validatorOptions)
}

type validatorOptionFunc func(*validatorOptions)

func (f validatorOptionFunc) apply(opts *validatorOptions) {
	f(opts)
}

func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return validatorOptionFunc(func(opts *validatorOptions) {
		opts.Logger = logger
	})
}

func WithValidatorLookup(lookup CapabilityLookup) ValidatorOption {
	return validatorOptionFunc(func(opts *validatorOptions) {
		opts.Lookup = lookup
	})
}

func WithValidatorFavorites(favorites llmbridge.FavoritesProvider) ValidatorOption {
	return validatorOptionFunc(func(opts *validatorOptions) {
		opts.Favorites = favorites
	})
}

func NewValidator(options ...ValidatorOption) *Validator {
	opts := &validatorOptions{
		Logger: slog.Default(),
	}

	for _, option := range options {
		option.apply(opts)
	}

	return &Validator{options: opts}
}

// Validate accepts or rejects a request against the target model's cached
// capabilities. It never returns an error: a cold cache, an unknown model
// and an empty favorites list all degrade to Valid or to a fully rendered
// Invalid, never to a failure that would abort the pipeline.
func (v *Validator) Validate(req *llmbridge.ChatRequest, requestID string) Outcome {
	tags := ClassifyMessages(req.Messages)
	if len(tags) == 0 {
		// Text-only fast path; the capability index is never consulted
		return Valid{}
	}

	if v.options.Lookup == nil {
		return Valid{}
	}
	model, found := v.options.Lookup.Lookup(req.Model)
	if !found {
		v.options.Logger.Debug("Model not in capability cache, passing through",
			"model", req.Model, "request_id", requestID)
		return Valid{}
	}

	for _, modality := range modalityCheckOrder {
		if !tags.Has(modality) {
			continue
		}
		if supportsModality(model, modality) {
			continue
		}
		v.options.Logger.Info("Rejecting request for unsupported modality",
			"model", req.Model, "modality", string(modality), "request_id", requestID)
		return Invalid{
			Modality: modality,
			ModelID:  req.Model,
			Message:  v.renderRejection(modality, req.Model),
		}
	}

	return Valid{}
}

func supportsModality(model *llmbridge.ModelCapabilities, modality Modality) bool {
	for _, capability := range capabilityStrings[modality] {
		if model.SupportsInput(capability) {
			return true
		}
	}
	return false
}

// renderRejection composes the user-facing message: a header naming the
// unsupported modality, up to maxSuggestions favorites that do support it
// (in the favorites list's own order), a static fallback when no favorite
// qualifies, and the docs link.
func (v *Validator) renderRejection(modality Modality, modelID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model %q does not support %s input.", modelID, modality)

	if favorites := v.qualifyingFavorites(modality); len(favorites) > 0 {
		fmt.Fprintf(&b, " Favorite models that do: %s.", strings.Join(favorites, ", "))
	} else if fallback := staticSuggestions[modality]; len(fallback) > 0 {
		fmt.Fprintf(&b, " Models that support %s input include: %s.", modality, strings.Join(fallback, ", "))
	}

	fmt.Fprintf(&b, " See %s for the full catalog.", ModelDocsURL)
	return b.String()
}

func (v *Validator) qualifyingFavorites(modality Modality) []string {
	if v.options.Favorites == nil {
		return nil
	}

	var out []string
	for _, id := range v.options.Favorites.FavoriteModelIDs() {
		model, found := v.options.Favorites.CachedModelByID(id)
		if !found {
			continue
		}
		if !supportsModality(model, modality) {
			continue
		}
		out = append(out, id)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
