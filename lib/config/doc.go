// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for parlor.
//
// Configuration is read from a single file named by the --config flag
// (via [LoadFile]) or the PARLOR_CONFIG environment variable (via
// [Load]). When neither is given, [Default] is used as is; there is no
// ~/.config discovery and no automatic file search. A path that is
// given but cannot be read is an error.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${PARLOR_DATA} (the resolved data directory), and
// ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// Key exports:
//
//   - [Config] -- data directory, keystore, homeserver, HTTP and log settings
//   - [Default] -- returns a Config with the built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other parlor packages.
package config
