// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore is parlor's secure storage for named symmetric keys.
// It stands in for a platform keystore: keys are created once, looked
// up by name, and never exported through any API other than Load, which
// returns the material in protected memory for the key provider's use.
//
// Two implementations exist:
//
//   - [Directory]: one age-sealed record per key in an owner-only
//     directory, sealed to a local x25519 identity.
//   - [Memory]: an in-process map, for tests.
//
// Create is exclusive. When two processes race to create the same key,
// exactly one wins and the other gets [ErrExists], so neither silently
// replaces a key that already encrypts stored data.
package keystore

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/bureau-foundation/parlor/lib/secret"
)

var (
	// ErrNotFound is returned by Load when no key has the given name.
	ErrNotFound = errors.New("keystore: key not found")

	// ErrExists is returned by Create when a key with the given name
	// already exists.
	ErrExists = errors.New("keystore: key already exists")
)

// Store holds named keys.
type Store interface {
	// Load returns a copy of the named key's material in protected
	// memory. The caller must close the buffer.
	Load(name string) (*secret.Buffer, error)

	// Create stores key under name. The buffer is borrowed, not
	// closed. Fails with ErrExists if name is taken.
	Create(name string, key *secret.Buffer) error
}

var keyNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateName checks that name is usable as a key identifier. Names
// become file names, so path separators and empty names are rejected.
func ValidateName(name string) error {
	if !keyNamePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("keystore: invalid key name %q", name)
	}
	return nil
}
