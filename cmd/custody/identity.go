// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/credential"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/session"
	"github.com/bureau-foundation/custody/lib/store"
)

func initCommand() *cli.Command {
	var (
		global      globalOptions
		userName    string
		displayName string
	)
	return &cli.Command{
		Name:    "init",
		Summary: "Register a credential and create the signing identity",
		Description: `Register a platform credential and generate the signing keypair.

The key is generated inside the custodian and stored only as an archive
encrypted under a key derived from the credential. The store keeps the
credential record, the encrypted archive, and the public identity.`,
		Usage: "custody init [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.StringVar(&userName, "user", "", "user name recorded with the credential (default: $USER)")
			flagSet.StringVar(&displayName, "display-name", "", "display name recorded with the credential")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			env, err := openEnvironment(global, "init")
			if err != nil {
				return err
			}
			defer env.Close()

			sessionConfig, err := env.sessionConfig()
			if err != nil {
				return err
			}
			if userName == "" {
				userName = os.Getenv("USER")
			}
			registered, err := session.Register(ctx, sessionConfig, credential.CreateOptions{
				UserName:    userName,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			defer registered.Close()

			identity := registered.Identity()
			fmt.Fprintf(os.Stdout, "%s\n", identity.Identity)
			env.logger.Info("identity created", "identity", identity.Identity, "algorithm", identity.Algorithm)
			return nil
		},
	}
}

type whoamiOutput struct {
	Identity     string `json:"identity"`
	Algorithm    string `json:"algorithm"`
	CredentialID string `json:"credentialId"`
	SeedSource   string `json:"seedSource"`
	Store        string `json:"store"`
}

func whoamiCommand() *cli.Command {
	var (
		global globalOptions
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the local identity",
		Description: `Show the registered identity from the record store.

Only public records are read; the credential is not used and the
signing key stays sealed.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("whoami", pflag.ContinueOnError)
			global.register(flagSet)
			output.Register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			env, err := openEnvironment(global, "whoami")
			if err != nil {
				return err
			}
			defer env.Close()

			var identity store.IdentityRecord
			found, err := store.GetJSON(ctx, env.store, store.KeyIdentity, &identity)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w (run 'custody init' first)", session.ErrNotRegistered)
			}
			var record store.CredentialRecord
			if _, err := store.GetJSON(ctx, env.store, store.KeyCredential, &record); err != nil {
				return err
			}

			result := whoamiOutput{
				Identity:     identity.Identity,
				Algorithm:    identity.Algorithm,
				CredentialID: record.CredentialID,
				SeedSource:   record.PRFSource,
				Store:        env.config.Paths.Store,
			}
			if done, err := output.EmitJSON(result); done {
				return err
			}
			fmt.Fprintf(os.Stdout, "Identity:    %s\n", result.Identity)
			fmt.Fprintf(os.Stdout, "Algorithm:   %s\n", result.Algorithm)
			fmt.Fprintf(os.Stdout, "Credential:  %s (%s)\n", result.CredentialID, result.SeedSource)
			fmt.Fprintf(os.Stdout, "Store:       %s\n", result.Store)
			return nil
		},
	}
}

func escrowCommand() *cli.Command {
	return &cli.Command{
		Name:    "escrow",
		Summary: "Export and recover the key archive for offline backup",
		Description: `Re-encrypt the key archive to age recipients for offline recovery.

An escrow copy can be recovered with the matching age identity without
the platform credential.`,
		Subcommands: []*cli.Command{
			escrowKeygenCommand(),
			escrowSealCommand(),
			escrowRecoverCommand(),
		},
	}
}

func escrowKeygenCommand() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for escrow",
		Usage:   "custody escrow keygen --output <path>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&output, "output", "o", "", "file to write the private key to (required, must not exist)")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()
			if err := secret.WriteFile(output, keypair.PrivateKey.Bytes()); err != nil {
				return fmt.Errorf("writing private key: %w", err)
			}
			fmt.Fprintln(os.Stdout, keypair.PublicKey)
			return nil
		},
	}
}

func escrowSealCommand() *cli.Command {
	var (
		global     globalOptions
		recipients []string
		output     string
	)
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt the key archive to age recipients",
		Usage:   "custody escrow seal --recipient <age1...> [--output <path>]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			global.register(flagSet)
			recipients = nil
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age public key to encrypt to (repeatable)")
			flagSet.StringVarP(&output, "output", "o", "", "file to write the escrow copy to (default: stdout)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			env, err := openEnvironment(global, "escrow/seal")
			if err != nil {
				return err
			}
			defer env.Close()

			opened, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer opened.Close()

			escrowed, err := opened.Escrow(ctx, recipients)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = os.Stdout.Write(escrowed)
				return err
			}
			return os.WriteFile(output, escrowed, 0o600)
		},
	}
}

func escrowRecoverCommand() *cli.Command {
	var keyPath string
	return &cli.Command{
		Name:    "recover",
		Summary: "Check an escrow copy against an age identity",
		Description: `Decrypt an escrow copy with an age private key and print the
identities it contains. The key material is zeroed without being written
anywhere.`,
		Usage: "custody escrow recover --key <path> [escrow-file]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("recover", pflag.ContinueOnError)
			flagSet.StringVar(&keyPath, "key", "", "age private key file (required)")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if keyPath == "" {
				return fmt.Errorf("--key is required")
			}
			escrowed, err := readInput(args)
			if err != nil {
				return err
			}
			privateKey, err := secret.ReadFile(keyPath)
			if err != nil {
				return err
			}
			defer privateKey.Close()

			recovered, err := archive.Recover(escrowed, privateKey)
			if err != nil {
				return err
			}
			defer recovered.Zero()
			for _, identity := range recovered.Identities() {
				fmt.Fprintln(os.Stdout, identity)
			}
			return nil
		},
	}
}

func forgetCommand() *cli.Command {
	var (
		global  globalOptions
		confirm bool
	)
	return &cli.Command{
		Name:    "forget",
		Summary: "Delete the local identity and all delegation records",
		Description: `Remove the credential record, the encrypted archive, the identity,
both delegation lists, and the revocation cache from the record store.

Without an escrow copy the signing key cannot be recovered afterwards.`,
		Usage: "custody forget --yes",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("forget", pflag.ContinueOnError)
			global.register(flagSet)
			flagSet.BoolVar(&confirm, "yes", false, "confirm deletion")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if !confirm {
				return fmt.Errorf("refusing to delete the identity without --yes")
			}
			env, err := openEnvironment(global, "forget")
			if err != nil {
				return err
			}
			defer env.Close()

			if err := session.Forget(ctx, env.store); err != nil {
				return err
			}
			env.logger.Info("identity forgotten", "store", env.config.Paths.Store)
			return nil
		},
	}
}

// readInput returns the contents of the single file argument, or
// stdin when there is none or it is "-".
func readInput(args []string) ([]byte, error) {
	switch {
	case len(args) > 1:
		return nil, fmt.Errorf("unexpected argument: %s", args[1])
	case len(args) == 0 || args[0] == "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(args[0])
	}
}
