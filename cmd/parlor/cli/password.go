// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/parlor/lib/secret"
)

// ReadPassword reads a login password. With a path, the password is
// read from that file ("-" reads one line from stdin). Without one, the
// user is prompted on the terminal with echo disabled; prompt is
// written to promptOutput.
func ReadPassword(passwordFile string, promptOutput io.Writer) (*secret.Buffer, error) {
	if passwordFile != "" {
		buffer, err := secret.ReadFromPath(passwordFile)
		if err != nil {
			return nil, Validation("reading password: %w", err)
		}
		return buffer, nil
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, Validation("no terminal available for interactive password prompt (use --password-file)")
	}

	fmt.Fprint(promptOutput, "Password: ")
	passwordBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(promptOutput)
	if err != nil {
		return nil, Internal("reading password: %w", err)
	}
	defer secret.Zero(passwordBytes)

	if len(passwordBytes) == 0 {
		return nil, Validation("password is empty")
	}
	buffer, err := secret.NewFromBytes(passwordBytes)
	if err != nil {
		return nil, Internal("storing password: %w", err)
	}
	return buffer, nil
}
