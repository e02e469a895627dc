// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package llmbridge

import "strings"

// ModelCapabilities is the locally cached view of a single catalog model:
// which input modalities it accepts and how large its context window is.
// Entries are replaced wholesale on catalog refresh, never patched.
type ModelCapabilities struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	InputModalities []string `json:"inputModalities"`
	ContextLength   int      `json:"contextLength,omitempty"`
}

// SupportsInput reports whether the model accepts the given input modality.
// Matching is case-insensitive; an empty modality list means the catalog
// did not declare modalities and nothing matches.
func (m *ModelCapabilities) SupportsInput(modality string) bool {
	for _, have := range m.InputModalities {
		if strings.EqualFold(have, modality) {
			return true
		}
	}
	return false
}

// FavoritesProvider exposes the caller's ordered model preferences together
// with capability lookups against the local catalog snapshot. The order of
// FavoriteModelIDs reflects user preference and is never re-sorted.
type FavoritesProvider interface {
	FavoriteModelIDs() []string
	CachedModelByID(id string) (*ModelCapabilities, bool)
}
