// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyprovider owns the device-bound symmetric key that protects
// the stored access token. Callers get encrypt and decrypt capability;
// the key material itself never leaves the provider.
//
// The cipher is XChaCha20-Poly1305: a 256-bit key, a 128-bit
// authentication tag, and a 192-bit nonce drawn fresh from crypto/rand
// for every encryption. With 192-bit random nonces, collisions under one
// key are not a practical concern for any number of writes a session
// store will perform. The key identifier is bound in as associated data,
// so a ciphertext produced under one key namespace does not open under
// another even if the raw key bytes were somehow equal.
package keyprovider

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bureau-foundation/parlor/lib/keystore"
	"github.com/bureau-foundation/parlor/lib/secret"
)

var (
	// ErrDecryption is returned when a ciphertext, nonce and key do not
	// belong together: tampered storage, a key replaced outside the
	// provider, or a malformed nonce.
	ErrDecryption = errors.New("keyprovider: decryption failed")

	// ErrKeystore wraps keystore failures during Open. These are fatal
	// initialization errors; the caller should not retry.
	ErrKeystore = errors.New("keyprovider: keystore unavailable")
)

// EncryptedSecret is the output of one encryption. Nonce is not secret
// and is stored alongside Ciphertext.
type EncryptedSecret struct {
	Ciphertext []byte
	Nonce      []byte
}

// Handle identifies the provider's key without exposing it.
type Handle struct {
	// Name is the keystore identifier.
	Name string

	// Fingerprint is a truncated BLAKE3 derive-key hash of the
	// material, safe to log. Two handles with equal fingerprints refer
	// to the same key.
	Fingerprint string
}

// Provider encrypts and decrypts with one named key. Safe for
// concurrent use.
type Provider struct {
	handle Handle
	key    *secret.Buffer
	aead   cipher.AEAD
}

// Open returns a provider for the named key, creating the key in store
// if it does not exist yet. An existing key is always reused: creating
// a new one would orphan everything encrypted under the old one.
func Open(store keystore.Store, keyName string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, created, err := loadOrCreate(store, keyName)
	if err != nil {
		return nil, err
	}

	// NewX copies the key into its own cipher state on the heap. The
	// protected buffer stays the canonical copy and is zeroed on Close.
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		key.Close()
		return nil, fmt.Errorf("keyprovider: key %q is unusable: %w", keyName, err)
	}

	provider := &Provider{
		handle: Handle{Name: keyName, Fingerprint: fingerprint(key.Bytes())},
		key:    key,
		aead:   aead,
	}

	if created {
		logger.Info("session key created", "key", keyName, "fingerprint", provider.handle.Fingerprint)
	} else {
		logger.Debug("session key loaded", "key", keyName, "fingerprint", provider.handle.Fingerprint)
	}
	return provider, nil
}

func loadOrCreate(store keystore.Store, keyName string) (*secret.Buffer, bool, error) {
	key, err := store.Load(keyName)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, keystore.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %w", ErrKeystore, err)
	}

	key, err = secret.Random(chacha20poly1305.KeySize)
	if err != nil {
		return nil, false, fmt.Errorf("%w: generating key: %w", ErrKeystore, err)
	}

	err = store.Create(keyName, key)
	if err == nil {
		return key, true, nil
	}
	key.Close()
	if !errors.Is(err, keystore.ErrExists) {
		return nil, false, fmt.Errorf("%w: %w", ErrKeystore, err)
	}

	// Lost a creation race. The winner's key is the one to use.
	key, err = store.Load(keyName)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrKeystore, err)
	}
	return key, false, nil
}

// Handle returns the key's identity.
func (p *Provider) Handle() Handle {
	return p.handle
}

// Encrypt seals plaintext under a fresh random nonce.
func (p *Provider) Encrypt(plaintext []byte) (EncryptedSecret, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedSecret{}, fmt.Errorf("keyprovider: generating nonce: %w", err)
	}
	return EncryptedSecret{
		Ciphertext: p.aead.Seal(nil, nonce, plaintext, []byte(p.handle.Name)),
		Nonce:      nonce,
	}, nil
}

// Decrypt opens an EncryptedSecret. Any inconsistency between the
// ciphertext, nonce and key returns ErrDecryption.
func (p *Provider) Decrypt(encrypted EncryptedSecret) ([]byte, error) {
	if len(encrypted.Nonce) != p.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrDecryption, len(encrypted.Nonce), p.aead.NonceSize())
	}
	if len(encrypted.Ciphertext) < p.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext shorter than the authentication tag", ErrDecryption)
	}
	plaintext, err := p.aead.Open(nil, encrypted.Nonce, encrypted.Ciphertext, []byte(p.handle.Name))
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// Close releases the key material. The provider must not be used
// afterwards.
func (p *Provider) Close() error {
	return p.key.Close()
}

func fingerprint(material []byte) string {
	hasher := blake3.NewDeriveKey("parlor 2026 session key fingerprint")
	hasher.Write(material)
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
