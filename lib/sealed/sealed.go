// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the one job parlor needs it
// for: sealing key records at rest to a local x25519 identity, and
// opening them again.
//
// Private keys and opened plaintext are returned as [secret.Buffer]
// values so they never linger on the Go heap.
package sealed

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/bureau-foundation/parlor/lib/secret"
)

// Identity is an age x25519 keypair. The caller must call Close.
type Identity struct {
	// PrivateKey is the AGE-SECRET-KEY-1... encoding. Never logged and
	// never written anywhere except an owner-only identity file.
	PrivateKey *secret.Buffer

	// Recipient is the age1... public key.
	Recipient string
}

// Close releases the private key memory. Idempotent.
func (i *Identity) Close() error {
	if i.PrivateKey != nil {
		return i.PrivateKey.Close()
	}
	return nil
}

// GenerateIdentity creates a new age x25519 identity.
func GenerateIdentity() (*Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}

	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}

	return &Identity{
		PrivateKey: privateKey,
		Recipient:  identity.Recipient().String(),
	}, nil
}

// ParseIdentity validates privateKey and derives its recipient. The
// buffer is borrowed: the returned Identity owns it and closing the
// Identity closes the buffer.
func ParseIdentity(privateKey *secret.Buffer) (*Identity, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("invalid age identity: %w", err)
	}
	return &Identity{
		PrivateKey: privateKey,
		Recipient:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to recipient (age1... format) and returns the
// binary age file.
func Seal(plaintext []byte, recipient string) ([]byte, error) {
	parsed, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("parsing recipient %q: %w", recipient, err)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, parsed)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return sealed.Bytes(), nil
}

// Open decrypts an age file produced by Seal. The plaintext is returned
// in a secret.Buffer the caller must close.
func Open(sealedData []byte, identity *Identity) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(identity.PrivateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(sealedData), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed payload is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}
