// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bureau-foundation/parlor/lib/secret"
)

// Memory is a Store backed by a map. Material is held as plain heap
// bytes, so Memory is only for tests.
type Memory struct {
	mu      sync.Mutex
	keys    map[string][]byte
	creates int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string][]byte)}
}

// Load implements Store.
func (m *Memory) Load(name string) (*secret.Buffer, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	material, ok := m.keys[name]
	if !ok {
		return nil, fmt.Errorf("loading %q: %w", name, ErrNotFound)
	}
	return secret.NewFromBytes(bytes.Clone(material))
}

// Create implements Store.
func (m *Memory) Create(name string, key *secret.Buffer) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[name]; ok {
		return fmt.Errorf("creating %q: %w", name, ErrExists)
	}
	m.keys[name] = bytes.Clone(key.Bytes())
	m.creates++
	return nil
}

// Creates reports how many keys have been created.
func (m *Memory) Creates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// Replace overwrites a key's material. Tests use it to simulate a key
// rotated outside the provider's control.
func (m *Memory) Replace(name string, material []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[name] = bytes.Clone(material)
}
