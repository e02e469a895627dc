// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package favorites adapts a configured, ordered model-preference list into
// the FavoritesProvider the capability validator consumes. The order is the
// user's preference and is preserved as configured.
package favorites

import (
	"github.com/MadsRC/llmbridge"
)

// CapabilityLookup resolves model ids against the local catalog snapshot
type CapabilityLookup interface {
	Lookup(modelID string) (*llmbridge.ModelCapabilities, bool)
}

type Provider struct {
	ids    []string
	lookup CapabilityLookup
}

func NewProvider(ids []string, lookup CapabilityLookup) *Provider {
	return &Provider{ids: ids, lookup: lookup}
}

func (p *Provider) FavoriteModelIDs() []string {
	return p.ids
}

func (p *Provider) CachedModelByID(id string) (*llmbridge.ModelCapabilities, bool) {
	if p.lookup == nil {
		return nil, false
	}
	return p.lookup.Lookup(id)
}
