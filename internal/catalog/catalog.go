// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package catalog holds the Model Capability Index: a TTL-bounded local
// snapshot of which catalog models accept which input modalities. The
// snapshot is replaced wholesale on refresh so concurrent readers never
// observe a half-updated catalog. A miss (unknown model, empty or expired
// snapshot) is not an error; the upstream catalog stays authoritative.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MadsRC/llmbridge"
)

// ModelLister fetches the full model catalog from the routing API
type ModelLister interface {
	ListModels(ctx context.Context) ([]llmbridge.ModelCapabilities, error)
}

// DefaultTTL is how long a snapshot is served before Lookup treats the
// index as cold again.
const DefaultTTL = 10 * time.Minute

type Index struct {
	options *indexOptions

	mu        sync.RWMutex
	byID      map[string]llmbridge.ModelCapabilities
	models    []llmbridge.ModelCapabilities
	fetchedAt time.Time
}

type indexOptions struct {
	Logger *slog.Logger
	Lister ModelLister
	TTL    time.Duration
}

type IndexOption interface {
	apply(*indexOptions)
}

type indexOptionFunc func(*indexOptions)

func (f indexOptionFunc) apply(opts *indexOptions) {
	f(opts)
}

func WithIndexLogger(logger *slog.Logger) IndexOption {
	return indexOptionFunc(func(opts *indexOptions) {
		opts.Logger = logger
	})
}

func WithIndexLister(lister ModelLister) IndexOption {
	return indexOptionFunc(func(opts *indexOptions) {
		opts.Lister = lister
	})
}

func WithIndexTTL(ttl time.Duration) IndexOption {
	return indexOptionFunc(func(opts *indexOptions) {
		opts.TTL = ttl
	})
}

func NewIndex(options ...IndexOption) (*Index, error) {
	opts := &indexOptions{
		Logger: slog.Default(),
		TTL:    DefaultTTL,
	}

	for _, option := range options {
		option.apply(opts)
	}

	if opts.Lister == nil {
		return nil, fmt.Errorf("catalog index requires a model lister")
	}

	return &Index{options: opts}, nil
}

// Refresh fetches the catalog and replaces the snapshot wholesale
func (i *Index) Refresh(ctx context.Context) error {
	models, err := i.options.Lister.ListModels(ctx)
	if err != nil {
		i.options.Logger.Error("Failed to refresh model catalog", "error", err)
		return fmt.Errorf("catalog refresh: %w", err)
	}

	byID := make(map[string]llmbridge.ModelCapabilities, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}

	i.mu.Lock()
	i.byID = byID
	i.models = models
	i.fetchedAt = time.Now()
	i.mu.Unlock()

	i.options.Logger.Debug("Model catalog refreshed", "models", len(models))
	return nil
}

// EnsureFresh refreshes only when the snapshot is cold or expired. Errors
// are returned but an existing stale snapshot stays in place, so callers
// may keep serving it.
func (i *Index) EnsureFresh(ctx context.Context) error {
	if !i.Expired() {
		return nil
	}
	return i.Refresh(ctx)
}

// Lookup returns the cached capabilities for a model id. A false return
// means "capabilities unknown": the model is absent or the snapshot is
// cold/expired. Callers treat that optimistically.
func (i *Index) Lookup(modelID string) (*llmbridge.ModelCapabilities, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.expiredLocked() {
		return nil, false
	}
	m, ok := i.byID[modelID]
	if !ok {
		return nil, false
	}
	return &m, true
}

// Models returns the current snapshot in catalog order. The returned slice
// is shared and must not be mutated; the index never patches it in place.
func (i *Index) Models() []llmbridge.ModelCapabilities {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.expiredLocked() {
		return nil
	}
	return i.models
}

// Expired reports whether the snapshot is cold or past its TTL
func (i *Index) Expired() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.expiredLocked()
}

// Age returns the time since the last successful refresh; zero when cold
func (i *Index) Age() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.fetchedAt.IsZero() {
		return 0
	}
	return time.Since(i.fetchedAt)
}

func (i *Index) expiredLocked() bool {
	return i.fetchedAt.IsZero() || time.Since(i.fetchedAt) > i.options.TTL
}
