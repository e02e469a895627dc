// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package keystore provides the durable per-installation persistence for
// the delegated credential secret: the OS keyring when one is reachable,
// otherwise an encrypted file. Both satisfy llmbridge.CredentialStore.
package keystore

import (
	"log/slog"

	"github.com/MadsRC/llmbridge"
)

// Open picks a credential store backend. The OS keyring is preferred; when
// it is not reachable (headless Linux without a Secret Service, stripped
// containers) the encrypted file store at fallbackPath is used instead.
func Open(logger *slog.Logger, service string, fallbackPath string) llmbridge.CredentialStore {
	kr := NewKeyringStore(service)
	if kr.Available() {
		logger.Debug("Using OS keyring credential store", "service", service)
		return kr
	}

	logger.Info("OS keyring unavailable, falling back to encrypted file store", "path", fallbackPath)
	return NewFileStore(fallbackPath, nil)
}
