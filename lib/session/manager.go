// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the single entry point for the active Matrix
// session. A [Manager] answers whether a user is logged in, hands out
// the bearer token for outgoing requests, and performs login and logout
// against the credential store.
//
// A process normally opens one Manager with [Open] at startup: that
// loads or creates the device key and opens the session database under
// the data directory. Tests build isolated managers with [New] over
// their own store.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/parlor/lib/credstore"
	"github.com/bureau-foundation/parlor/lib/keyprovider"
	"github.com/bureau-foundation/parlor/lib/keystore"
)

// CredentialStore is the storage the manager delegates to.
// *credstore.Store implements it.
type CredentialStore interface {
	SaveSession(token, userID, homeserverURL string) error
	LoadToken() (string, bool)
	LoadUserID() (string, bool)
	LoadHomeserverURL() (string, bool)
	ClearTokenOnly() error
	ClearAll() error
	Subscribe() *credstore.Subscription
	Close() error
}

// DatabaseFile is the session database name inside the data directory.
const DatabaseFile = "session.db"

// Config holds the parameters for [Open].
type Config struct {
	// DataDirectory holds the session database. Created with mode 0700
	// if missing.
	DataDirectory string

	// KeystoreDirectory holds the sealed device key. Defaults to
	// <DataDirectory>/keys.
	KeystoreDirectory string

	// IdentityFile overrides the keystore's sealing identity path.
	IdentityFile string

	// KeyName is the device key identifier. Defaults to
	// "parlor.session".
	KeyName string

	Logger *slog.Logger
}

// DefaultKeyName is the device key identifier used when Config.KeyName
// is empty.
const DefaultKeyName = "parlor.session"

// Manager is the session facade. Safe for concurrent use.
type Manager struct {
	store   CredentialStore
	logger  *slog.Logger
	closers []func() error
}

// Open initializes the session layer: opens the keystore, loads or
// creates the device key, and opens the session database. A keystore
// failure is fatal and returned as is; callers should not retry.
func Open(config Config) (*Manager, error) {
	if config.DataDirectory == "" {
		return nil, fmt.Errorf("session: DataDirectory is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keystoreDirectory := config.KeystoreDirectory
	if keystoreDirectory == "" {
		keystoreDirectory = filepath.Join(config.DataDirectory, "keys")
	}
	keyName := config.KeyName
	if keyName == "" {
		keyName = DefaultKeyName
	}

	if err := os.MkdirAll(config.DataDirectory, 0700); err != nil {
		return nil, fmt.Errorf("session: creating data directory: %w", err)
	}

	keys, err := keystore.OpenDirectory(keystore.DirectoryConfig{
		Path:         keystoreDirectory,
		IdentityFile: config.IdentityFile,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	provider, err := keyprovider.Open(keys, keyName, logger)
	if err != nil {
		keys.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	store, err := credstore.Open(credstore.Config{
		Path:   filepath.Join(config.DataDirectory, DatabaseFile),
		Cipher: provider,
		Logger: logger,
	})
	if err != nil {
		provider.Close()
		keys.Close()
		return nil, fmt.Errorf("session: %w", err)
	}

	manager := New(store, logger)
	manager.closers = []func() error{provider.Close, keys.Close}
	return manager, nil
}

// New returns a manager over an existing store. The manager takes
// ownership of store and closes it in [Manager.Close].
func New(store CredentialStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// IsLoggedIn reports whether a decryptable access token is stored.
func (m *Manager) IsLoggedIn() bool {
	_, ok := m.store.LoadToken()
	return ok
}

// CurrentToken returns the access token. It satisfies the token source
// used by the request authenticator.
func (m *Manager) CurrentToken() (string, bool) {
	return m.store.LoadToken()
}

// UserID returns the stored Matrix user ID. It survives [Manager.Expire]
// so a re-login can be prefilled.
func (m *Manager) UserID() (string, bool) {
	return m.store.LoadUserID()
}

// HomeserverURL returns the stored homeserver base URL.
func (m *Manager) HomeserverURL() (string, bool) {
	return m.store.LoadHomeserverURL()
}

// Login records a freshly issued session. The error is the storage
// failure, if any; on error the caller must treat the user as logged
// out.
func (m *Manager) Login(homeserverURL, userID, token string) error {
	if err := m.store.SaveSession(token, userID, homeserverURL); err != nil {
		return err
	}
	m.logger.Info("session stored", "user_id", userID, "homeserver", homeserverURL)
	return nil
}

// Logout removes the session. It never fails: if the full clear fails,
// the token alone is cleared, and any remaining error is logged. The
// token is re-read on every request, so nothing keeps authenticating
// once either clear has succeeded.
func (m *Manager) Logout() {
	err := m.store.ClearAll()
	if err == nil {
		m.logger.Info("session cleared")
		return
	}
	m.logger.Error("clearing session failed, clearing token only", "error", err)

	if fallbackErr := m.store.ClearTokenOnly(); fallbackErr != nil {
		m.logger.Error("clearing token failed", "error", errors.Join(err, fallbackErr))
	}
}

// Expire drops the token after the homeserver rejected it, keeping the
// user ID and homeserver for re-login.
func (m *Manager) Expire() {
	if err := m.store.ClearTokenOnly(); err != nil {
		m.logger.Error("clearing expired token failed", "error", err)
		return
	}
	m.logger.Warn("session expired")
}

// Subscribe returns a replay-latest feed of token state changes.
func (m *Manager) Subscribe() *credstore.Subscription {
	return m.store.Subscribe()
}

// Close releases the store and, for a manager from [Open], the device
// key and keystore.
func (m *Manager) Close() error {
	errs := []error{m.store.Close()}
	for _, closer := range m.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
