// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MadsRC/llmbridge"
	"github.com/zalando/go-keyring"
)

// keyringUser is the account name the secret is filed under; the service
// name distinguishes installations.
const keyringUser = "delegated-credential"

// KeyringStore persists the delegated credential in the OS keyring
// (Keychain on macOS, Credential Manager on Windows, Secret Service on
// Linux).
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(_ context.Context) (string, error) {
	value, err := keyring.Get(s.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", llmbridge.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return value, nil
}

func (s *KeyringStore) Set(_ context.Context, secret string) error {
	if err := keyring.Set(s.service, keyringUser, secret); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(_ context.Context) error {
	err := keyring.Delete(s.service, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// Available probes the keyring with a throwaway entry. go-keyring has no
// dedicated availability check, so a set/delete round trip is the test.
func (s *KeyringStore) Available() bool {
	const probe = "availability-probe"
	if err := keyring.Set(s.service, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(s.service, probe)
	return true
}
