// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MadsRC/llmbridge"
	"github.com/gofrs/flock"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for deriving the AES-256 sealing key
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	kdfKeyLen  = 32
)

// envelope is the on-disk format of the sealed secret
type envelope struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore persists the delegated credential in an AES-GCM sealed file.
// The sealing key is derived with argon2id from a passphrase; when no
// passphrase is supplied a random machine-local one is generated next to
// the store, which protects against casual reads but not against an
// attacker with access to the same directory. A flock guards the file so
// concurrent IDE windows sharing one installation do not interleave writes.
type FileStore struct {
	path       string
	passphrase []byte
}

func NewFileStore(path string, passphrase []byte) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	lock := flock.New(s.lockPath())
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("file store lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", llmbridge.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("file store read: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("file store parse: %w", err)
	}

	passphrase, err := s.loadPassphrase(false)
	if err != nil {
		return "", err
	}

	gcm, err := sealingCipher(passphrase, env.Salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("file store unseal: %w", err)
	}
	return string(plaintext), nil
}

func (s *FileStore) Set(_ context.Context, secret string) error {
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("file store lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	passphrase, err := s.loadPassphrase(true)
	if err != nil {
		return err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("file store salt: %w", err)
	}

	gcm, err := sealingCipher(passphrase, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("file store nonce: %w", err)
	}

	env := envelope{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, []byte(secret), nil),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("file store encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("file store mkdir: %w", err)
	}

	// Write-then-rename keeps a crash from leaving a torn store behind
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("file store write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file store rename: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context) error {
	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("file store lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file store delete: %w", err)
	}
	return nil
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

// loadPassphrase returns the configured passphrase, or the generated
// machine-local one, creating it when create is set.
func (s *FileStore) loadPassphrase(create bool) ([]byte, error) {
	if len(s.passphrase) > 0 {
		return s.passphrase, nil
	}

	keyPath := s.path + ".key"
	raw, err := os.ReadFile(keyPath)
	if err == nil {
		return raw, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("file store key read: %w", err)
	}
	if !create {
		return nil, fmt.Errorf("file store key missing: %w", llmbridge.ErrNotFound)
	}

	generated := make([]byte, 32)
	if _, err := rand.Read(generated); err != nil {
		return nil, fmt.Errorf("file store key generate: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("file store key mkdir: %w", err)
	}
	if err := os.WriteFile(keyPath, generated, 0o600); err != nil {
		return nil, fmt.Errorf("file store key write: %w", err)
	}
	return generated, nil
}

func sealingCipher(passphrase, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("file store cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("file store gcm: %w", err)
	}
	return gcm, nil
}
