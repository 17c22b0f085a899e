// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds reads of HTTP response bodies from a Matrix
// homeserver. A misbehaving server cannot make the client allocate more
// than MaxResponseSize for a JSON body, or more than MaxErrorBodySize
// for an error body kept for diagnostics.
package netutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response reads. A page of room
// history or public rooms is a few hundred kilobytes at most.
const MaxResponseSize int64 = 32 << 20

// MaxErrorBodySize bounds error body reads.
const MaxErrorBodySize int64 = 64 << 10

// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
var ErrResponseTooLarge = errors.New("netutil: response body exceeds size limit")

// ReadResponse reads a JSON API response body. Unlike a plain
// io.LimitReader, an oversized body is an error rather than a silently
// truncated document.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// DecodeResponse reads a JSON API response body and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an error response body for diagnostics. Read errors
// are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return data
}
