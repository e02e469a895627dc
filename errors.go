// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package llmbridge

import "errors"

var (
	// ErrNotFound should be returned when a requested resource cannot be found
	ErrNotFound = errors.New("not found")

	// ErrNoCredential should be returned when no delegated credential is held
	// locally and one could not be provisioned
	ErrNoCredential = errors.New("no delegated credential available")

	// ErrInvalidRequest should be returned when a request fails local
	// validation and must never reach the network
	ErrInvalidRequest = errors.New("invalid request")
)
