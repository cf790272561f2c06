// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for custody binaries.
//
// Configuration is loaded from a single file specified by either the
// CUSTODY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The file is YAML, or JSON with comments when its name ends in .json
// or .jsonc. Durations are written as Go duration strings ("5m").
//
// The file may contain environment-specific sections (development,
// production) that override base values when [Config].Environment
// matches. Validation is stricter in production: the revocation
// authority must be reached over https.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CUSTODY_ROOT}, and ${VAR:-default} patterns are expanded.
//
// This package depends on no other custody packages.
package config
