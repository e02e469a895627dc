// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package credential manages the lifecycle of the single delegated
// credential this bridge holds against the routing API. The manager
// guarantees at most one remote credential bearing the well-known label,
// repairs local/remote divergence silently, and debounces concurrent
// creation triggers behind an instance-owned guard.
//
// The state machine is re-derived from current facts on every check:
//
//	local secret present            -> done (trusted without remote checks)
//	absent locally and remotely     -> create
//	absent locally, present remotely -> orphan: delete remote, then create
//
// A remote credential's secret value is only ever exposed at creation
// time, so a remote entry without a local copy is unusable and safe to
// replace.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MadsRC/llmbridge"
	"github.com/MadsRC/llmbridge/internal/cache"
	"github.com/MadsRC/llmbridge/internal/monitoring"
)

// RemoteKeyService is the upstream credential-management surface. The
// returned summaries never include secret values; CreateKey is the only
// call that ever sees one.
type RemoteKeyService interface {
	ListKeys(ctx context.Context) ([]llmbridge.RemoteCredentialSummary, error)
	CreateKey(ctx context.Context, label string) (*llmbridge.DelegatedCredential, error)
	DeleteKey(ctx context.Context, remoteID string) (bool, error)
}

const (
	// DefaultLabel is the well-known label identifying this bridge's
	// delegated credential upstream.
	DefaultLabel = "llmbridge-ide-plugin"

	// DefaultListTTL bounds how long a remote credential listing is served
	// from cache during passive checks.
	DefaultListTTL = time.Minute

	listCacheKey = "remote-credentials"
)

type Manager struct {
	options *managerOptions

	mu       sync.Mutex
	creating bool

	listCache *cache.Cache[string, []llmbridge.RemoteCredentialSummary]
}

type managerOptions struct {
	Logger  *slog.Logger
	Store   llmbridge.CredentialStore
	Keys    RemoteKeyService
	Label   string
	ListTTL time.Duration
	Metrics *monitoring.BridgeMetrics
}

type ManagerOption interface {
	apply(*managerOptions)
}

type managerOptionFunc func(*managerOptions)

func (f managerOptionFunc) apply(opts *managerOptions) {
	f(opts)
}

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.Logger = logger
	})
}

func WithManagerStore(store llmbridge.CredentialStore) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.Store = store
	})
}

func WithManagerKeys(keys RemoteKeyService) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.Keys = keys
	})
}

func WithManagerLabel(label string) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.Label = label
	})
}

func WithManagerListTTL(ttl time.Duration) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.ListTTL = ttl
	})
}

func WithManagerMetrics(metrics *monitoring.BridgeMetrics) ManagerOption {
	return managerOptionFunc(func(opts *managerOptions) {
		opts.Metrics = metrics
	})
}

func NewManager(options ...ManagerOption) (*Manager, error) {
	opts := &managerOptions{
		Logger:  slog.Default(),
		Label:   DefaultLabel,
		ListTTL: DefaultListTTL,
	}

	for _, option := range options {
		option.apply(opts)
	}

	if opts.Store == nil {
		return nil, fmt.Errorf("credential manager requires a store")
	}
	if opts.Keys == nil {
		return nil, fmt.Errorf("credential manager requires a remote key service")
	}

	return &Manager{
		options:   opts,
		listCache: cache.New[string, []llmbridge.RemoteCredentialSummary](opts.ListTTL),
	}, nil
}

// EnsureExists makes sure a usable delegated credential is held locally.
// A locally stored secret is trusted as-is; no remote verification happens
// on this path. When no local secret exists the manager reconciles against
// the remote listing: orphaned remote entries bearing the label are deleted
// and a fresh credential is created and persisted. Concurrent calls while a
// creation is in flight are no-ops.
func (m *Manager) EnsureExists(ctx context.Context) error {
	_, err := m.options.Store.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, llmbridge.ErrNotFound) {
		m.options.Logger.Error("Failed to read credential store", "operation", "ensure", "error", err)
		return fmt.Errorf("credential store read: %w", err)
	}

	if !m.beginCreation() {
		m.options.Logger.Debug("Credential creation already in flight, skipping", "operation", "ensure")
		return nil
	}
	defer m.endCreation()

	return m.reconcile(ctx, "ensure", false)
}

// ForceRecreate unconditionally performs orphan-style repair: every remote
// credential bearing the label is deleted, a fresh one is created, and the
// local store is overwritten. Used when the user explicitly reports the
// credential as broken. A creation already in flight makes this a no-op.
func (m *Manager) ForceRecreate(ctx context.Context) error {
	if !m.beginCreation() {
		m.options.Logger.Debug("Credential creation already in flight, skipping", "operation", "recreate")
		return nil
	}
	defer m.endCreation()

	return m.reconcile(ctx, "recreate", true)
}

// ResetCreationGuard force-clears the creation guard. Recovery hatch for a
// UI action after an abandoned session; normal flows clear the guard via
// defer and never need this.
func (m *Manager) ResetCreationGuard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creating = false
}

// CurrentSecret returns the delegated secret, provisioning one first when
// none is held locally. Returns ErrNoCredential when provisioning did not
// yield a usable secret (including when another creation was in flight).
func (m *Manager) CurrentSecret(ctx context.Context) (string, error) {
	secret, err := m.options.Store.Get(ctx)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, llmbridge.ErrNotFound) {
		return "", fmt.Errorf("credential store read: %w", err)
	}

	if err := m.EnsureExists(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", llmbridge.ErrNoCredential, err)
	}

	secret, err = m.options.Store.Get(ctx)
	if err != nil {
		return "", llmbridge.ErrNoCredential
	}
	return secret, nil
}

// ListRemote returns the remote credential listing, served from a short
// TTL cache unless bypassCache is set (explicit refresh actions bypass;
// passive UI checks accept the cache).
func (m *Manager) ListRemote(ctx context.Context, bypassCache bool) ([]llmbridge.RemoteCredentialSummary, error) {
	if !bypassCache {
		if entries, found := m.listCache.Get(listCacheKey); found {
			return entries, nil
		}
	}

	entries, err := m.options.Keys.ListKeys(ctx)
	if err != nil {
		m.options.Logger.Error("Failed to list remote credentials", "operation", "list", "error", err)
		m.options.Metrics.RecordCredentialOp(ctx, "list", "failure")
		return nil, fmt.Errorf("list remote credentials: %w", err)
	}

	m.listCache.Set(listCacheKey, entries)
	m.options.Metrics.RecordCredentialOp(ctx, "list", "success")
	return entries, nil
}

// InvalidateListCache drops the cached remote listing wholesale
func (m *Manager) InvalidateListCache() {
	m.listCache.Clear()
}

// beginCreation is the check-and-set entry into the Creating state
func (m *Manager) beginCreation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creating {
		return false
	}
	m.creating = true
	return true
}

func (m *Manager) endCreation() {
	m.mu.Lock()
	m.creating = false
	m.mu.Unlock()
}

// reconcile runs one atomic read-decide-act pass: list remote state, remove
// any entries bearing the label, create a fresh credential, persist and
// verify it. Callers hold the creation guard. No retries happen here; a
// failure is logged once and the next trigger re-evaluates from scratch.
func (m *Manager) reconcile(ctx context.Context, operation string, bypassCache bool) error {
	entries, err := m.ListRemote(ctx, bypassCache)
	if err != nil {
		m.options.Metrics.RecordCredentialOp(ctx, operation, "failure")
		return err
	}

	var removed int64
	for _, entry := range entries {
		if entry.Label != m.options.Label {
			continue
		}
		// Orphan (or duplicate) repair: the secret behind this entry is not
		// recoverable, so the entry is deleted rather than adopted.
		m.options.Logger.Warn("Deleting remote credential without a local secret",
			"operation", operation, "label", entry.Label, "remote_id", entry.RemoteID)
		if _, err := m.options.Keys.DeleteKey(ctx, entry.RemoteID); err != nil {
			m.options.Logger.Error("Failed to delete remote credential",
				"operation", operation, "remote_id", entry.RemoteID, "error", err)
			m.options.Metrics.RecordCredentialOp(ctx, operation, "failure")
			return fmt.Errorf("delete remote credential: %w", err)
		}
		removed++
	}
	if removed > 0 {
		m.InvalidateListCache()
		m.options.Metrics.RecordOrphanRepair(ctx, removed)
	}

	cred, err := m.options.Keys.CreateKey(ctx, m.options.Label)
	if err != nil {
		m.options.Logger.Error("Failed to create delegated credential",
			"operation", operation, "label", m.options.Label, "error", err)
		m.options.Metrics.RecordCredentialOp(ctx, operation, "failure")
		return fmt.Errorf("create delegated credential: %w", err)
	}
	m.InvalidateListCache()

	if err := m.options.Store.Set(ctx, cred.Value); err != nil {
		// The secret is unrecoverable from upstream; failing to persist it
		// leaves a fresh orphan behind for the next check to repair.
		m.options.Logger.Error("Created credential but failed to persist it locally",
			"operation", operation, "fingerprint", llmbridge.Fingerprint(cred.Value), "error", err)
		m.options.Metrics.RecordCredentialOp(ctx, operation, "failure")
		return fmt.Errorf("persist delegated credential: %w", err)
	}

	m.verifyPersisted(ctx, operation, cred.Value)

	m.options.Logger.Info("Delegated credential provisioned",
		"operation", operation, "label", m.options.Label,
		"fingerprint", llmbridge.Fingerprint(cred.Value))
	m.options.Metrics.RecordCredentialOp(ctx, operation, "success")
	return nil
}

// verifyPersisted reads the freshly written secret back and compares it to
// what was written. A mismatch means the store is silently corrupting data;
// that is diagnosed loudly but does not fail the operation, since the
// in-memory create already succeeded.
func (m *Manager) verifyPersisted(ctx context.Context, operation string, written string) {
	readBack, err := m.options.Store.Get(ctx)
	if err != nil {
		m.options.Logger.Error("CRITICAL: credential store read-back failed after persist",
			"operation", operation, "error", err)
		return
	}
	if readBack != written {
		m.options.Logger.Error("CRITICAL: credential store read-back does not match written value",
			"operation", operation,
			"written_fingerprint", llmbridge.Fingerprint(written),
			"read_fingerprint", llmbridge.Fingerprint(readBack))
	}
}
