// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds sensitive bytes (session keys, passwords) in
// memory that the Go runtime never sees.
//
// [Buffer] allocates with mmap(MAP_ANONYMOUS), locks the pages with
// mlock so they cannot be swapped, and marks them MADV_DONTDUMP so they
// never appear in a core file. Close zeros, unlocks and unmaps.
//
// Constructors:
//
//   - [New] -- zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [Random] -- buffer filled from crypto/rand
//   - [ReadFromPath] -- file or stdin, whitespace trimmed
//
// The key provider keeps the session encryption key in a Buffer for the
// life of the process; the CLI keeps login passwords in one only for the
// duration of the login request.
package secret
