// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/authority"
	"github.com/bureau-foundation/custody/lib/custodian"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/store"
)

func delegationCommand() *cli.Command {
	return &cli.Command{
		Name:    "delegation",
		Summary: "Create, import, check, and revoke delegations",
		Subcommands: []*cli.Command{
			delegationCreateCommand(),
			delegationImportCommand(),
			delegationListCommand(),
			delegationAuthorizeCommand(),
			delegationRevokeCommand(),
			delegationStatusCommand(),
		},
	}
}

func delegationCreateCommand() *cli.Command {
	var (
		global   globalOptions
		audience string
		resource string
		actions  []string
		ttl      time.Duration
		proof    string
		bridge   bool
	)
	return &cli.Command{
		Name:    "create",
		Summary: "Delegate capabilities to another identity",
		Description: `Sign a delegation granting capabilities on a resource to an audience.

With --proof the delegation re-delegates capabilities received in that
imported delegation; they must be covered by it and the expiry is
clamped to it. With --bridge the grant passes through a single-use
intermediate identity of the other signature algorithm, for recipients
that only verify that algorithm.

The encoded proof is printed to stdout.`,
		Usage: "custody delegation create --audience <did> --with <resource> --can <action> [flags]",
		Examples: []cli.Example{
			{
				Description: "Let an agent upload to one space for a day",
				Command:     "custody delegation create --audience did:key:z6Mk... --with did:key:z6Mk... --can upload/add --ttl 24h",
			},
			{
				Description: "Re-delegate a received grant",
				Command:     "custody delegation create --audience did:key:z6Mk... --with did:key:z6Mk... --can upload/add --proof bafy...",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			global.register(flagSet)
			actions = nil
			flagSet.StringVar(&audience, "audience", "", "recipient DID (required)")
			flagSet.StringVar(&resource, "with", "", "resource URI (default: the local identity)")
			flagSet.StringArrayVar(&actions, "can", nil, "action to grant, e.g. upload/add or upload/* (repeatable, required)")
			flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "lifetime of the delegation")
			flagSet.StringVar(&proof, "proof", "", "ID of a received delegation to re-delegate from")
			flagSet.BoolVar(&bridge, "bridge", false, "issue through an intermediate identity of the other algorithm")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if audience == "" || len(actions) == 0 {
				return fmt.Errorf("--audience and at least one --can are required")
			}
			env, err := openEnvironment(global, "delegation/create")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			var created *store.DelegationInfo
			if bridge {
				via, err := startBridgeCustodian(ctx, did.Algorithm(opened.Identity().Algorithm), env)
				if err != nil {
					return err
				}
				defer via.Close()
				created, err = opened.Authority().Bridge(ctx, authority.BridgeRequest{
					Via:      via,
					Audience: audience,
					Resource: resource,
					Actions:  actions,
					TTL:      ttl,
					Proof:    proof,
				})
				if err != nil {
					return err
				}
			} else {
				created, err = opened.Authority().CreateDelegation(ctx, authority.CreateRequest{
					Audience: audience,
					Resource: resource,
					Actions:  actions,
					TTL:      ttl,
					Proof:    proof,
				})
				if err != nil {
					return err
				}
			}

			env.logger.Info("delegation created", "delegation", created.ID, "audience", created.Audience)
			fmt.Fprintln(os.Stdout, created.Proof)
			return nil
		},
	}
}

// startBridgeCustodian starts a single-use custodian holding a fresh
// keypair of the algorithm the local identity does not use.
func startBridgeCustodian(ctx context.Context, local did.Algorithm, env *environment) (*custodian.Handle, error) {
	algorithm := did.P256
	if local == did.P256 {
		algorithm = did.Ed25519
	}
	via, err := custodian.Start(custodian.Options{Logger: env.logger.With("custodian", "bridge")})
	if err != nil {
		return nil, err
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		via.Close()
		return nil, err
	}
	if err := via.Init(ctx, seed); err != nil {
		via.Close()
		return nil, err
	}
	if _, err := via.GenerateKeypair(ctx, algorithm); err != nil {
		via.Close()
		return nil, err
	}
	return via, nil
}

func delegationImportCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "import",
		Summary: "Import a delegation addressed to the local identity",
		Description: `Parse a delegation proof, check that it is addressed to the local
identity, and record it as received.

The proof may be canonical (multibase archive), a bridge link, or a
legacy JSON token. It is read from the argument, a file, or stdin.`,
		Usage: "custody delegation import [<proof> | -]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			proof, err := readProof(args)
			if err != nil {
				return err
			}
			env, err := openEnvironment(global, "delegation/import")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			imported, err := opened.Authority().ImportDelegation(ctx, proof)
			if err != nil {
				return err
			}
			env.logger.Info("delegation imported", "delegation", imported.ID, "issuer", imported.Issuer, "format", imported.Format)
			fmt.Fprintln(os.Stdout, imported.ID)
			return nil
		},
	}
}

// readProof takes the proof from the argument when it does not name a
// readable file, and from stdin when there is no argument.
func readProof(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		if data, err := os.ReadFile(args[0]); err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		return strings.TrimSpace(args[0]), nil
	}
	data, err := readInput(args)
	if err != nil {
		return "", err
	}
	proof := strings.TrimSpace(string(data))
	if proof == "" {
		return "", fmt.Errorf("no proof given")
	}
	return proof, nil
}

func delegationListCommand() *cli.Command {
	var (
		global   globalOptions
		output   cli.JSONOutput
		received bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List created or received delegations",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			global.register(flagSet)
			output.Register(flagSet)
			flagSet.BoolVar(&received, "received", false, "list received delegations instead of created ones")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			env, err := openEnvironment(global, "delegation/list")
			if err != nil {
				return err
			}
			defer env.Close()

			key := store.KeyDelegationsCreated
			if received {
				key = store.KeyDelegationsReceived
			}
			delegations, err := store.Delegations(ctx, env.store, key)
			if err != nil {
				return err
			}
			if done, err := output.EmitJSON(delegations); done {
				return err
			}

			if len(delegations) == 0 {
				fmt.Fprintln(os.Stdout, "no delegations")
				return nil
			}
			counterparty := "AUDIENCE"
			if received {
				counterparty = "ISSUER"
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "ID\t%s\tCAPABILITIES\tEXPIRES\tSTATE\n", counterparty)
			for _, info := range delegations {
				party := info.Audience
				if received {
					party = info.Issuer
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					info.ID, party, formatCapabilities(info.Capabilities), formatExpiry(info.ExpiresAt), delegationState(info))
			}
			return writer.Flush()
		},
	}
}

func formatCapabilities(capabilities []store.Capability) string {
	parts := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		parts = append(parts, capability.Can+" on "+capability.With)
	}
	return strings.Join(parts, ", ")
}

func formatExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	return expiresAt.UTC().Format(time.RFC3339)
}

func delegationState(info store.DelegationInfo) string {
	switch {
	case info.Revoked:
		return "revoked"
	case !info.ExpiresAt.IsZero() && time.Now().After(info.ExpiresAt):
		return "expired"
	}
	return "active"
}

func delegationAuthorizeCommand() *cli.Command {
	var (
		global   globalOptions
		resource string
		action   string
	)
	return &cli.Command{
		Name:    "authorize",
		Summary: "Check whether a received delegation grants an action",
		Description: `Check a received delegation for an action on a resource.

The check covers capability, expiry, and revocation of every delegation
in the chain. A revocation status that cannot be determined denies.
Exit status is 0 when allowed and 1 when denied.`,
		Usage: "custody delegation authorize <id> --with <resource> --can <action>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("authorize", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&resource, "with", "", "resource URI (required)")
			flagSet.StringVar(&action, "can", "", "action (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one delegation ID is required")
			}
			if resource == "" || action == "" {
				return fmt.Errorf("--with and --can are required")
			}
			env, err := openEnvironment(global, "delegation/authorize")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			err = opened.Authority().Authorize(ctx, args[0], resource, action)
			if err == nil {
				fmt.Fprintln(os.Stdout, "allowed")
				return nil
			}
			if !isDenial(err) {
				return err
			}
			fmt.Fprintf(os.Stdout, "denied: %v\n", err)
			return &cli.ExitError{Code: 1}
		},
	}
}

// isDenial reports whether err is an authorization verdict rather than
// an operational failure.
func isDenial(err error) bool {
	for _, target := range []error{
		authority.ErrCapabilityMissing,
		authority.ErrDelegationExpired,
		authority.ErrDelegationRevoked,
		authority.ErrUnknownDelegation,
		authority.ErrRevocationCheckFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func delegationRevokeCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke a created delegation",
		Description: `Sign a revocation for a delegation this identity issued and submit it
to the revocation authority. The local record and the revocation cache
are updated on success.`,
		Usage: "custody delegation revoke <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one delegation ID is required")
			}
			env, err := openEnvironment(global, "delegation/revoke")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			record, err := opened.Authority().Revoke(ctx, args[0])
			if err != nil {
				return err
			}
			env.logger.Info("delegation revoked", "delegation", record.DelegationID, "revoked_by", record.RevokedBy)
			fmt.Fprintf(os.Stdout, "revoked %s at %s\n", record.DelegationID, record.RevokedAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func delegationStatusCommand() *cli.Command {
	var global globalOptions
	return &cli.Command{
		Name:    "status",
		Summary: "Show the revocation status of a delegation",
		Description: `Report whether a delegation is revoked, using the local cache while
it is fresh and the revocation authority otherwise.`,
		Usage: "custody delegation status <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			global.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one delegation ID is required")
			}
			env, err := openEnvironment(global, "delegation/status")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			revoked, err := opened.Authority().IsRevoked(ctx, args[0])
			if err != nil {
				return err
			}
			if revoked {
				fmt.Fprintln(os.Stdout, "revoked")
			} else {
				fmt.Fprintln(os.Stdout, "active")
			}
			return nil
		},
	}
}
