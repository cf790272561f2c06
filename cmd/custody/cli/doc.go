// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the custody binary: a tree
// of [Command] values with pflag flag sets, help output, and typo
// suggestions for unknown commands and flags.
//
// [NewCommandLogger] builds the slog logger every command logs
// through: text on a terminal, JSON when stderr is piped.
//
// Commands that report a negative outcome through their exit status
// (a denied authorization check, for instance) return an [ExitError]
// so main exits with its code without printing an error line.
package cli
