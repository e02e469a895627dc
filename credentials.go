// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package llmbridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DelegatedCredential is the long-lived secret created once against the
// upstream account and used to authorize all outbound requests. The
// upstream never re-exposes Value after creation; losing the local copy
// makes the remote entry an orphan.
type DelegatedCredential struct {
	Value    string
	Label    string
	RemoteID string
}

// RemoteCredentialSummary is one entry of the upstream credential listing.
// It never contains the secret value; that is an upstream API constraint.
type RemoteCredentialSummary struct {
	RemoteID  string     `json:"remoteId"`
	Label     string     `json:"label"`
	Disabled  bool       `json:"disabled"`
	Usage     float64    `json:"usage"`
	Limit     *float64   `json:"limit,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// CredentialStore is durable per-installation persistence for the delegated
// credential secret. Get returns ErrNotFound when no secret is stored.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, secret string) error
	Delete(ctx context.Context) error
}

// Fingerprint returns a short, log-safe identifier for a secret: the first
// eight hex characters of its SHA-256. Never log the secret itself.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:8]
}
