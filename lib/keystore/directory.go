// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/parlor/lib/codec"
	"github.com/bureau-foundation/parlor/lib/sealed"
	"github.com/bureau-foundation/parlor/lib/secret"
)

// DirectoryConfig configures a Directory keystore.
type DirectoryConfig struct {
	// Path is the keystore directory. Created with mode 0700 if
	// missing.
	Path string

	// IdentityFile is the age identity that seals every key record.
	// Defaults to <Path>/identity, generated on first use with mode
	// 0600. Point it at a file on a tmpfs or a systemd credential to
	// keep the identity off the disk that holds the records.
	IdentityFile string

	// Logger receives key lifecycle messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Directory is a Store that keeps one sealed record per key.
type Directory struct {
	path     string
	identity *sealed.Identity
	logger   *slog.Logger
}

// keyRecord is the CBOR payload inside each sealed key file. Name is
// checked on load so a record copied to another file name is rejected.
type keyRecord struct {
	Name      string    `cbor:"name"`
	Material  []byte    `cbor:"material"`
	CreatedAt time.Time `cbor:"created_at"`
}

const keyFileSuffix = ".key"

// OpenDirectory opens (creating if necessary) a directory keystore and
// loads its sealing identity. The caller must call Close.
func OpenDirectory(config DirectoryConfig) (*Directory, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("keystore: Path is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("keystore: creating directory %s: %w", config.Path, err)
	}

	identityFile := config.IdentityFile
	if identityFile == "" {
		identityFile = filepath.Join(config.Path, "identity")
	}

	identity, err := loadOrCreateIdentity(identityFile, logger)
	if err != nil {
		return nil, err
	}

	return &Directory{
		path:     config.Path,
		identity: identity,
		logger:   logger,
	}, nil
}

// Close releases the sealing identity.
func (d *Directory) Close() error {
	return d.identity.Close()
}

// Load implements Store.
func (d *Directory) Load(name string) (*secret.Buffer, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	sealedData, err := os.ReadFile(d.keyPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("keystore: reading key %q: %w", name, err)
	}

	opened, err := sealed.Open(sealedData, d.identity)
	if err != nil {
		return nil, fmt.Errorf("keystore: unsealing key %q: %w", name, err)
	}
	defer opened.Close()

	var record keyRecord
	if err := codec.Unmarshal(opened.Bytes(), &record); err != nil {
		return nil, fmt.Errorf("keystore: decoding key %q: %w", name, err)
	}
	if record.Name != name {
		secret.Zero(record.Material)
		return nil, fmt.Errorf("keystore: key file %q holds a record for %q", name, record.Name)
	}
	if len(record.Material) == 0 {
		return nil, fmt.Errorf("keystore: key %q has no material", name)
	}

	return secret.NewFromBytes(record.Material)
}

// Create implements Store. The record is written to a temporary file
// and hard-linked into place; link(2) fails if the target exists, which
// makes creation exclusive across processes.
func (d *Directory) Create(name string, key *secret.Buffer) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	payload, err := codec.Marshal(keyRecord{
		Name:      name,
		Material:  key.Bytes(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("keystore: encoding key %q: %w", name, err)
	}
	sealedData, err := sealed.Seal(payload, d.identity.Recipient)
	secret.Zero(payload)
	if err != nil {
		return fmt.Errorf("keystore: sealing key %q: %w", name, err)
	}

	temporary, err := os.CreateTemp(d.path, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("keystore: creating temporary file: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(sealedData); err != nil {
		temporary.Close()
		return fmt.Errorf("keystore: writing key %q: %w", name, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("keystore: syncing key %q: %w", name, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("keystore: closing key %q: %w", name, err)
	}

	if err := os.Link(temporaryPath, d.keyPath(name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating %q: %w", name, ErrExists)
		}
		return fmt.Errorf("keystore: installing key %q: %w", name, err)
	}
	syncDirectory(d.path)

	d.logger.Info("keystore key created", "name", name, "path", d.keyPath(name))
	return nil
}

func (d *Directory) keyPath(name string) string {
	return filepath.Join(d.path, name+keyFileSuffix)
}

// loadOrCreateIdentity reads the age identity at path, generating and
// writing one (O_EXCL, mode 0600) if the file does not exist yet.
func loadOrCreateIdentity(path string, logger *slog.Logger) (*sealed.Identity, error) {
	for range 2 {
		privateKey, err := secret.ReadFromPath(path)
		if err == nil {
			identity, parseErr := sealed.ParseIdentity(privateKey)
			if parseErr != nil {
				privateKey.Close()
				return nil, fmt.Errorf("keystore: identity file %s: %w", path, parseErr)
			}
			return identity, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("keystore: reading identity file %s: %w", path, err)
		}

		identity, err := sealed.GenerateIdentity()
		if err != nil {
			return nil, fmt.Errorf("keystore: %w", err)
		}
		err = writeExclusive(path, identity.PrivateKey.Bytes())
		if err == nil {
			logger.Info("keystore identity created", "path", path, "recipient", identity.Recipient)
			return identity, nil
		}
		identity.Close()
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("keystore: writing identity file %s: %w", path, err)
		}
		// Another process created the identity between our read and
		// write. Loop once more to read theirs.
	}
	return nil, fmt.Errorf("keystore: identity file %s could not be read or created", path)
}

func writeExclusive(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

// syncDirectory flushes a directory entry so a newly linked file
// survives a crash. Best effort.
func syncDirectory(path string) {
	directory, err := os.Open(path)
	if err != nil {
		return
	}
	directory.Sync()
	directory.Close()
}
