// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/version"
)

func root() *cli.Command {
	return &cli.Command{
		Name: "custody",
		Description: `Manage a device-bound signing identity and capability delegations.

The signing key is generated inside a key custodian and stored only as
an archive encrypted under a key derived from a platform credential.
Delegations are signed UCAN-style grants that can be passed to other
identities, chained, checked, and revoked.`,
		Subcommands: []*cli.Command{
			initCommand(),
			whoamiCommand(),
			delegationCommand(),
			escrowCommand(),
			forgetCommand(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			fmt.Fprintln(os.Stdout, version.Full())
			return nil
		},
	}
}
