// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the single active Matrix session: the
// access token encrypted under a [keyprovider.Provider], and the user ID
// and homeserver URL in plaintext.
//
// All four stored fields (ciphertext, nonce, user ID, homeserver URL)
// live in one SQLite row and are written in one immediate transaction,
// so a reader sees either the whole previous session or the whole new
// one. Writes serialize on a process mutex in addition to the SQLite
// write lock; reads run concurrently through the pool.
//
// Failure policy is asymmetric. Reads never fail: a storage error, a
// malformed row or a ciphertext that does not decrypt all read as "no
// token" and are logged. Writes return their error, because a caller
// that assumes a credential was saved when it was not would silently
// lose the session.
package credstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/parlor/lib/keyprovider"
	"github.com/bureau-foundation/parlor/lib/sqlitepool"
)

// ErrClosed is returned by writes after [Store.Close].
var ErrClosed = errors.New("credstore: store is closed")

// Cipher is the encryption capability the store needs.
// *keyprovider.Provider implements it.
type Cipher interface {
	Encrypt(plaintext []byte) (keyprovider.EncryptedSecret, error)
	Decrypt(encrypted keyprovider.EncryptedSecret) ([]byte, error)
}

// Config holds the parameters for [Open].
type Config struct {
	// Path is the SQLite database file. The parent directory must exist.
	Path string

	// Cipher encrypts and decrypts the access token.
	Cipher Cipher

	// Logger receives read-degradation warnings. Tokens are never
	// logged. If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Snapshot is one consistent read of the stored session.
type Snapshot struct {
	// Token is the decrypted access token. Empty unless TokenPresent.
	Token        string
	TokenPresent bool

	UserID        string
	HomeserverURL string
}

// Store is the credential store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	cipher Cipher
	logger *slog.Logger

	// writeMutex serializes writes and orders publications. Subscribe
	// also holds it so a new subscriber's initial value cannot be
	// overtaken by a concurrent write.
	writeMutex sync.Mutex
	closed     atomic.Bool

	subscribersMutex sync.Mutex
	subscribers      map[*Subscription]struct{}
}

const schema = `
CREATE TABLE IF NOT EXISTS session (
	slot           INTEGER PRIMARY KEY CHECK (slot = 1),
	ciphertext     TEXT,
	nonce          TEXT,
	user_id        TEXT,
	homeserver_url TEXT
);`

// Open opens (creating if necessary) the store at config.Path.
func Open(config Config) (*Store, error) {
	if config.Cipher == nil {
		return nil, fmt.Errorf("credstore: Cipher is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("credstore: %w", err)
	}

	return &Store{
		pool:        pool,
		cipher:      config.Cipher,
		logger:      logger,
		subscribers: make(map[*Subscription]struct{}),
	}, nil
}

// SaveSession encrypts token and stores it together with userID and
// homeserverURL, replacing any previous session in one transaction.
func (s *Store) SaveSession(token, userID, homeserverURL string) error {
	encrypted, err := s.cipher.Encrypt([]byte(token))
	if err != nil {
		return fmt.Errorf("credstore: encrypting token: %w", err)
	}

	return s.write("saving session", TokenState{Token: token, Present: true}, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO session (slot, ciphertext, nonce, user_id, homeserver_url)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT (slot) DO UPDATE SET
				ciphertext = excluded.ciphertext,
				nonce = excluded.nonce,
				user_id = excluded.user_id,
				homeserver_url = excluded.homeserver_url`,
			&sqlitex.ExecOptions{
				Args: []any{
					base64.StdEncoding.EncodeToString(encrypted.Ciphertext),
					base64.StdEncoding.EncodeToString(encrypted.Nonce),
					userID,
					homeserverURL,
				},
			})
	})
}

// ClearTokenOnly removes the encrypted token and keeps the user ID and
// homeserver URL, so a later login can be prefilled.
func (s *Store) ClearTokenOnly() error {
	return s.write("clearing token", TokenState{}, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `UPDATE session SET ciphertext = NULL, nonce = NULL WHERE slot = 1`, nil)
	})
}

// ClearAll removes every stored field.
func (s *Store) ClearAll() error {
	return s.write("clearing session", TokenState{}, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM session WHERE slot = 1`, nil)
	})
}

// Load reads all fields in a single statement. It never fails; see the
// package documentation.
func (s *Store) Load() Snapshot {
	row, ok := s.readRow()
	if !ok {
		return Snapshot{}
	}
	snapshot := Snapshot{UserID: row.userID, HomeserverURL: row.homeserverURL}
	snapshot.Token, snapshot.TokenPresent = s.decryptRow(row)
	return snapshot
}

// LoadToken returns the decrypted access token, or false if there is
// none or it cannot be read.
func (s *Store) LoadToken() (string, bool) {
	row, ok := s.readRow()
	if !ok {
		return "", false
	}
	return s.decryptRow(row)
}

// LoadUserID returns the stored user ID. It may be present without a
// token after [Store.ClearTokenOnly].
func (s *Store) LoadUserID() (string, bool) {
	row, ok := s.readRow()
	if !ok || !row.hasUserID {
		return "", false
	}
	return row.userID, true
}

// LoadHomeserverURL returns the stored homeserver URL.
func (s *Store) LoadHomeserverURL() (string, bool) {
	row, ok := s.readRow()
	if !ok || !row.hasHomeserver {
		return "", false
	}
	return row.homeserverURL, true
}

// Close closes every subscription and the database. Reads after Close
// report an absent session; writes return [ErrClosed].
func (s *Store) Close() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if s.closed.Swap(true) {
		return nil
	}

	s.subscribersMutex.Lock()
	for subscription := range s.subscribers {
		delete(s.subscribers, subscription)
		close(subscription.updates)
	}
	s.subscribersMutex.Unlock()

	return s.pool.Close()
}

// write runs statement in an immediate transaction under the write
// mutex and, once committed, publishes state to subscribers.
func (s *Store) write(action string, state TokenState, statement func(*sqlite.Conn) error) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}

	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("credstore: %s: %w", action, err)
	}
	defer s.pool.Put(conn)

	if err := transact(conn, statement); err != nil {
		return fmt.Errorf("credstore: %s: %w", action, err)
	}

	s.publish(state)
	return nil
}

func transact(conn *sqlite.Conn, statement func(*sqlite.Conn) error) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return err
	}
	defer endFn(&err)
	return statement(conn)
}

type storedRow struct {
	ciphertext    string
	nonce         string
	hasToken      bool
	userID        string
	hasUserID     bool
	homeserverURL string
	hasHomeserver bool
}

func (s *Store) readRow() (storedRow, bool) {
	if s.closed.Load() {
		return storedRow{}, false
	}

	conn, err := s.pool.Take(context.Background())
	if err != nil {
		s.logger.Warn("credential store unreadable, treating session as absent", "error", err)
		return storedRow{}, false
	}
	defer s.pool.Put(conn)

	var (
		row   storedRow
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT ciphertext, nonce, user_id, homeserver_url FROM session WHERE slot = 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				row.hasToken = stmt.ColumnType(0) != sqlite.TypeNull && stmt.ColumnType(1) != sqlite.TypeNull
				row.ciphertext = stmt.ColumnText(0)
				row.nonce = stmt.ColumnText(1)
				row.hasUserID = stmt.ColumnType(2) != sqlite.TypeNull
				row.userID = stmt.ColumnText(2)
				row.hasHomeserver = stmt.ColumnType(3) != sqlite.TypeNull
				row.homeserverURL = stmt.ColumnText(3)
				return nil
			},
		})
	if err != nil {
		s.logger.Warn("credential store read failed, treating session as absent", "error", err)
		return storedRow{}, false
	}
	return row, found
}

func (s *Store) decryptRow(row storedRow) (string, bool) {
	if !row.hasToken {
		return "", false
	}

	ciphertext, err := base64.StdEncoding.DecodeString(row.ciphertext)
	if err != nil {
		s.logger.Warn("stored token ciphertext is not valid base64, treating as absent", "error", err)
		return "", false
	}
	nonce, err := base64.StdEncoding.DecodeString(row.nonce)
	if err != nil {
		s.logger.Warn("stored token nonce is not valid base64, treating as absent", "error", err)
		return "", false
	}

	plaintext, err := s.cipher.Decrypt(keyprovider.EncryptedSecret{Ciphertext: ciphertext, Nonce: nonce})
	if err != nil {
		s.logger.Warn("stored token does not decrypt, treating as absent", "error", err)
		return "", false
	}
	return string(plaintext), true
}
