// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/parlor/lib/keyprovider"
	"github.com/bureau-foundation/parlor/lib/keystore"
	"github.com/bureau-foundation/parlor/lib/testutil"
)

const (
	testToken      = "syt_YWxpY2U_secret_token"
	testUserID     = "@alice:example.org"
	testHomeserver = "https://matrix.example.org"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	provider, err := keyprovider.Open(keystore.NewMemory(), "parlor.session", nil)
	if err != nil {
		t.Fatalf("keyprovider.Open: %v", err)
	}
	t.Cleanup(func() { provider.Close() })

	path := filepath.Join(t.TempDir(), "session.db")
	store, err := Open(Config{Path: path, Cipher: provider})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

// rawExec runs SQL on a separate connection, simulating another process
// or on-disk corruption.
func rawExec(t *testing.T, path, query string, args ...any) {
	t.Helper()
	conn, err := sqlite.OpenConn(path)
	if err != nil {
		t.Fatalf("OpenConn: %v", err)
	}
	defer conn.Close()
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
}

func rawCiphertext(t *testing.T, path string) string {
	t.Helper()
	conn, err := sqlite.OpenConn(path)
	if err != nil {
		t.Fatalf("OpenConn: %v", err)
	}
	defer conn.Close()
	var ciphertext string
	err = sqlitex.Execute(conn, `SELECT ciphertext FROM session WHERE slot = 1`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ciphertext = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("reading ciphertext: %v", err)
	}
	return ciphertext
}

func TestEmptyStore(t *testing.T) {
	store, _ := openTestStore(t)

	if token, ok := store.LoadToken(); ok {
		t.Errorf("LoadToken = %q, want absent", token)
	}
	if userID, ok := store.LoadUserID(); ok {
		t.Errorf("LoadUserID = %q, want absent", userID)
	}
	if homeserver, ok := store.LoadHomeserverURL(); ok {
		t.Errorf("LoadHomeserverURL = %q, want absent", homeserver)
	}
	if snapshot := store.Load(); snapshot != (Snapshot{}) {
		t.Errorf("Load = %+v, want zero", snapshot)
	}
}

func TestSaveSession_RoundTrip(t *testing.T) {
	store, path := openTestStore(t)

	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if token, ok := store.LoadToken(); !ok || token != testToken {
		t.Errorf("LoadToken = (%q, %v), want (%q, true)", token, ok, testToken)
	}
	if userID, ok := store.LoadUserID(); !ok || userID != testUserID {
		t.Errorf("LoadUserID = (%q, %v)", userID, ok)
	}
	if homeserver, ok := store.LoadHomeserverURL(); !ok || homeserver != testHomeserver {
		t.Errorf("LoadHomeserverURL = (%q, %v)", homeserver, ok)
	}

	stored := rawCiphertext(t, path)
	if stored == "" {
		t.Fatal("no ciphertext stored")
	}
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		t.Fatalf("stored ciphertext is not standard base64: %v", err)
	}
	if string(decoded) == testToken {
		t.Error("token stored in plaintext")
	}
}

func TestSaveSession_Replaces(t *testing.T) {
	store, _ := openTestStore(t)

	if err := store.SaveSession("first", "@first:example.org", "https://one.example.org"); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.SaveSession("second", "@second:example.org", "https://two.example.org"); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	want := Snapshot{
		Token:         "second",
		TokenPresent:  true,
		UserID:        "@second:example.org",
		HomeserverURL: "https://two.example.org",
	}
	if got := store.Load(); got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadToken_TamperedCiphertext(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(rawCiphertext(t, path))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ciphertext[len(ciphertext)/2] ^= 0x01
	rawExec(t, path, `UPDATE session SET ciphertext = ? WHERE slot = 1`, base64.StdEncoding.EncodeToString(ciphertext))

	if token, ok := store.LoadToken(); ok {
		t.Fatalf("LoadToken after tampering = %q, want absent", token)
	}
	// Metadata is plaintext and unaffected.
	if userID, ok := store.LoadUserID(); !ok || userID != testUserID {
		t.Errorf("LoadUserID = (%q, %v)", userID, ok)
	}
}

func TestLoadToken_MalformedEncoding(t *testing.T) {
	tests := []struct {
		name   string
		column string
	}{
		{"ciphertext", "ciphertext"},
		{"nonce", "nonce"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store, path := openTestStore(t)
			if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}
			rawExec(t, path, fmt.Sprintf(`UPDATE session SET %s = 'not*base64!' WHERE slot = 1`, test.column))
			if token, ok := store.LoadToken(); ok {
				t.Errorf("LoadToken = %q, want absent", token)
			}
		})
	}
}

func TestLoadToken_ForeignKey(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	store.Close()

	// Same database, different device key.
	otherProvider, err := keyprovider.Open(keystore.NewMemory(), "parlor.session", nil)
	if err != nil {
		t.Fatalf("keyprovider.Open: %v", err)
	}
	defer otherProvider.Close()
	reopened, err := Open(Config{Path: path, Cipher: otherProvider})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	if token, ok := reopened.LoadToken(); ok {
		t.Errorf("LoadToken under a foreign key = %q, want absent", token)
	}
}

func TestClearTokenOnly(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if err := store.ClearTokenOnly(); err != nil {
		t.Fatalf("ClearTokenOnly: %v", err)
	}

	if _, ok := store.LoadToken(); ok {
		t.Error("token still present after ClearTokenOnly")
	}
	if userID, ok := store.LoadUserID(); !ok || userID != testUserID {
		t.Errorf("LoadUserID = (%q, %v), want retained", userID, ok)
	}
	if homeserver, ok := store.LoadHomeserverURL(); !ok || homeserver != testHomeserver {
		t.Errorf("LoadHomeserverURL = (%q, %v), want retained", homeserver, ok)
	}
}

func TestClearAll(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if err := store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if snapshot := store.Load(); snapshot != (Snapshot{}) {
		t.Errorf("Load after ClearAll = %+v, want zero", snapshot)
	}

	// Clearing an empty store is not an error.
	if err := store.ClearAll(); err != nil {
		t.Errorf("ClearAll on empty store: %v", err)
	}
	if err := store.ClearTokenOnly(); err != nil {
		t.Errorf("ClearTokenOnly on empty store: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	provider, err := keyprovider.Open(keystore.NewMemory(), "parlor.session", nil)
	if err != nil {
		t.Fatalf("keyprovider.Open: %v", err)
	}
	defer provider.Close()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := Open(Config{Path: path, Cipher: provider})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	first.Close()

	second, err := Open(Config{Path: path, Cipher: provider})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if token, ok := second.LoadToken(); !ok || token != testToken {
		t.Errorf("LoadToken after reopen = (%q, %v)", token, ok)
	}
}

func TestConcurrentReadersSeeWholeSessions(t *testing.T) {
	store, _ := openTestStore(t)

	sessions := []Snapshot{
		{Token: "token-a", TokenPresent: true, UserID: "@a:example.org", HomeserverURL: "https://a.example.org"},
		{Token: "token-b", TokenPresent: true, UserID: "@b:example.org", HomeserverURL: "https://b.example.org"},
	}
	if err := store.SaveSession(sessions[0].Token, sessions[0].UserID, sessions[0].HomeserverURL); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	const writes = 100
	var wait sync.WaitGroup
	done := make(chan struct{})

	for writer := range 2 {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for index := range writes {
				session := sessions[(index+writer)%2]
				if err := store.SaveSession(session.Token, session.UserID, session.HomeserverURL); err != nil {
					t.Errorf("SaveSession: %v", err)
					return
				}
			}
		}()
	}

	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				got := store.Load()
				if got != sessions[0] && got != sessions[1] {
					t.Errorf("reader observed a mixed session: %+v", got)
					return
				}
			}
		}()
	}

	wait.Wait()
	close(done)
	readers.Wait()
}

func TestSaveSession_StorageFailureSurfaced(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	rawExec(t, path, `CREATE TRIGGER reject_update BEFORE UPDATE ON session BEGIN SELECT RAISE(ABORT, 'disk quota exceeded'); END`)
	rawExec(t, path, `CREATE TRIGGER reject_delete BEFORE DELETE ON session BEGIN SELECT RAISE(ABORT, 'disk quota exceeded'); END`)

	if err := store.SaveSession("replacement", "@bob:example.org", "https://other.example.org"); err == nil {
		t.Fatal("SaveSession succeeded against a rejecting table")
	}
	if err := store.ClearAll(); err == nil {
		t.Fatal("ClearAll succeeded against a rejecting table")
	}

	// The failed writes left the previous session whole.
	want := Snapshot{Token: testToken, TokenPresent: true, UserID: testUserID, HomeserverURL: testHomeserver}
	if got := store.Load(); got != want {
		t.Errorf("Load after failed writes = %+v, want %+v", got, want)
	}
}

func TestLoad_UnreadableTableIsAbsent(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	rawExec(t, path, `ALTER TABLE session RENAME TO session_moved`)

	if token, ok := store.LoadToken(); ok {
		t.Errorf("LoadToken = %q, want absent", token)
	}
	if userID, ok := store.LoadUserID(); ok {
		t.Errorf("LoadUserID = %q, want absent", userID)
	}
}

func TestClosedStore(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := store.SaveSession(testToken, testUserID, testHomeserver); !errors.Is(err, ErrClosed) {
		t.Errorf("SaveSession after Close = %v, want ErrClosed", err)
	}
	if err := store.ClearAll(); !errors.Is(err, ErrClosed) {
		t.Errorf("ClearAll after Close = %v, want ErrClosed", err)
	}
	if _, ok := store.LoadToken(); ok {
		t.Error("LoadToken after Close reported a token")
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

type failingCipher struct{}

func (failingCipher) Encrypt([]byte) (keyprovider.EncryptedSecret, error) {
	return keyprovider.EncryptedSecret{}, errors.New("key unavailable")
}

func (failingCipher) Decrypt(keyprovider.EncryptedSecret) ([]byte, error) {
	return nil, keyprovider.ErrDecryption
}

func TestSaveSession_EncryptionFailureSurfaced(t *testing.T) {
	store, err := Open(Config{Path: filepath.Join(t.TempDir(), "session.db"), Cipher: failingCipher{}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.SaveSession(testToken, testUserID, testHomeserver); err == nil {
		t.Fatal("SaveSession succeeded with a failing cipher")
	}
	if _, ok := store.LoadUserID(); ok {
		t.Error("metadata written although the token could not be encrypted")
	}
}

func TestOpen_RequiresCipher(t *testing.T) {
	if _, err := Open(Config{Path: filepath.Join(t.TempDir(), "session.db")}); err == nil {
		t.Fatal("Open without a Cipher succeeded")
	}
}

const receiveTimeout = 5 * time.Second

func TestSubscribe_ReplaysCurrentValue(t *testing.T) {
	store, _ := openTestStore(t)

	empty := store.Subscribe()
	defer empty.Close()
	if state := testutil.RequireReceive(t, empty.Updates(), receiveTimeout, "initial state"); state.Present {
		t.Errorf("initial state = %+v, want absent", state)
	}

	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	late := store.Subscribe()
	defer late.Close()
	state := testutil.RequireReceive(t, late.Updates(), receiveTimeout, "late subscriber initial state")
	if state != (TokenState{Token: testToken, Present: true}) {
		t.Errorf("late subscriber initial state = %+v", state)
	}
}

func TestSubscribe_DeliversWritesInOrder(t *testing.T) {
	store, _ := openTestStore(t)

	first := store.Subscribe()
	defer first.Close()
	second := store.Subscribe()
	defer second.Close()

	for _, subscription := range []*Subscription{first, second} {
		testutil.RequireReceive(t, subscription.Updates(), receiveTimeout, "initial state")
	}

	steps := []struct {
		write func() error
		want  TokenState
	}{
		{func() error { return store.SaveSession("one", testUserID, testHomeserver) }, TokenState{Token: "one", Present: true}},
		{func() error { return store.SaveSession("two", testUserID, testHomeserver) }, TokenState{Token: "two", Present: true}},
		{store.ClearTokenOnly, TokenState{}},
		{func() error { return store.SaveSession("three", testUserID, testHomeserver) }, TokenState{Token: "three", Present: true}},
		{store.ClearAll, TokenState{}},
	}
	for index, step := range steps {
		if err := step.write(); err != nil {
			t.Fatalf("step %d: %v", index, err)
		}
		for _, subscription := range []*Subscription{first, second} {
			got := testutil.RequireReceive(t, subscription.Updates(), receiveTimeout, "step %d", index)
			if got != step.want {
				t.Errorf("step %d: got %+v, want %+v", index, got, step.want)
			}
		}
	}
}

func TestSubscribe_SlowSubscriberGetsLatest(t *testing.T) {
	store, _ := openTestStore(t)

	subscription := store.Subscribe()
	defer subscription.Close()

	for index := range 10 {
		if err := store.SaveSession(fmt.Sprintf("token-%d", index), testUserID, testHomeserver); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	got := testutil.RequireReceive(t, subscription.Updates(), receiveTimeout, "coalesced state")
	if got != (TokenState{Token: "token-9", Present: true}) {
		t.Errorf("coalesced state = %+v, want token-9", got)
	}
	testutil.RequireNoValue(t, subscription.Updates(), 50*time.Millisecond, "stale values after the latest")
}

func TestSubscription_Close(t *testing.T) {
	store, _ := openTestStore(t)

	subscription := store.Subscribe()
	subscription.Close()
	subscription.Close()
	testutil.RequireClosed(t, subscription.Updates(), receiveTimeout, "closed subscription")

	// Writes after a subscriber leaves do not block or panic.
	if err := store.SaveSession(testToken, testUserID, testHomeserver); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Resubscribing starts a fresh feed at the current value.
	again := store.Subscribe()
	defer again.Close()
	if state := testutil.RequireReceive(t, again.Updates(), receiveTimeout, "resubscribed"); state.Token != testToken {
		t.Errorf("resubscribed state = %+v", state)
	}
}

func TestStoreClose_ClosesSubscriptions(t *testing.T) {
	store, _ := openTestStore(t)

	subscription := store.Subscribe()
	store.Close()
	testutil.RequireClosed(t, subscription.Updates(), receiveTimeout, "subscription after store close")
	subscription.Close()

	after := store.Subscribe()
	testutil.RequireClosed(t, after.Updates(), receiveTimeout, "subscription on closed store")
}
