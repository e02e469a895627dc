// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package pipeline implements the inbound request pipeline: modality
// classification, capability validation against the catalog snapshot,
// translation to the upstream request shape, and the acceptor facade tying
// them together. Everything here is synchronous and side-effect free; the
// first network call happens after a request has been accepted.
package pipeline

import (
	"github.com/MadsRC/llmbridge"
)

// Modality is a category of non-text message content a model may or may
// not be able to consume.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityFile  Modality = "file"
)

// modalityCheckOrder fixes the order violations are reported in. The first
// unsupported modality wins; callers fix one problem and resubmit.
var modalityCheckOrder = []Modality{ModalityImage, ModalityAudio, ModalityVideo, ModalityFile}

// ModalitySet is a deduplicated, order-free set of detected modalities
type ModalitySet map[Modality]struct{}

func (s ModalitySet) Has(m Modality) bool {
	_, ok := s[m]
	return ok
}

// ClassifyMessages walks every message and tags the non-text content kinds
// it finds. String-typed content contributes nothing. Content-part types
// this module does not recognize are ignored, so new upstream part kinds
// pass through un-gated instead of breaking validation. Pure function.
func ClassifyMessages(messages []llmbridge.ChatMessage) ModalitySet {
	tags := make(ModalitySet)
	for _, msg := range messages {
		parts, ok := msg.Parts()
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := classifyPart(part.Type); ok {
				tags[m] = struct{}{}
			}
		}
	}
	return tags
}

func classifyPart(partType string) (Modality, bool) {
	switch partType {
	case "image_url":
		return ModalityImage, true
	case "input_audio", "audio":
		return ModalityAudio, true
	case "video_url", "video":
		return ModalityVideo, true
	case "file", "document":
		return ModalityFile, true
	default:
		return "", false
	}
}
