// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/multiformats/go-multibase"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/credential"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/session"
	"github.com/bureau-foundation/custody/lib/store"
)

// authenticatorMasterSize is the length of a freshly generated
// development authenticator secret.
const authenticatorMasterSize = 32

// globalOptions are the flags every command that touches local state
// accepts.
type globalOptions struct {
	ConfigPath string
}

func (o *globalOptions) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.ConfigPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
}

// environment is everything a command needs to open a session: the
// loaded config, a logger, the record store, the credential provider,
// and the revocation authority client.
type environment struct {
	config   *config.Config
	logger   *slog.Logger
	store    *store.SQLite
	provider *credential.Provider
	remote   *revocation.HTTPClient
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEnvironment loads the config and opens the record store. The
// caller must Close the returned environment.
func openEnvironment(options globalOptions, command string) (*environment, error) {
	cfg, err := loadConfig(options.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	level, err := cli.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := cli.NewCommandLogger(level, cfg.Log.Format).With("command", command)

	authenticator, err := loadAuthenticator(cfg, logger)
	if err != nil {
		return nil, err
	}
	provider, err := credential.NewProvider(credential.ProviderConfig{
		Authenticator:  authenticator,
		RelyingPartyID: cfg.Identity.RelyingParty,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	remote, err := revocation.NewHTTPClient(revocation.HTTPClientConfig{
		BaseURL:    cfg.Revocation.URL,
		HTTPClient: &http.Client{Timeout: cfg.Revocation.Timeout},
		RateLimit:  rate.Limit(cfg.Revocation.RateLimit),
		Burst:      cfg.Revocation.Burst,
	})
	if err != nil {
		return nil, err
	}

	records, err := store.OpenSQLite(cfg.Paths.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	return &environment{
		config:   cfg,
		logger:   logger,
		store:    records,
		provider: provider,
		remote:   remote,
	}, nil
}

// loadAuthenticator returns the software authenticator in development
// and no authenticator otherwise. The development master secret is
// created on first use.
func loadAuthenticator(cfg *config.Config, logger *slog.Logger) (credential.Authenticator, error) {
	if cfg.Environment != config.Development {
		logger.Debug("no platform authenticator available", "environment", cfg.Environment)
		return nil, nil
	}

	master, err := secret.ReadFile(cfg.Paths.Authenticator)
	if errors.Is(err, fs.ErrNotExist) {
		master, err = createAuthenticatorMaster(cfg.Paths.Authenticator)
		if err == nil {
			logger.Info("created development authenticator secret", "path", cfg.Paths.Authenticator)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading authenticator secret: %w", err)
	}

	authenticator, err := credential.NewSoftwareAuthenticator(credential.SoftwareConfig{Master: master})
	if err != nil {
		master.Close()
		return nil, err
	}
	return authenticator, nil
}

func createAuthenticatorMaster(path string) (*secret.Buffer, error) {
	raw := make([]byte, authenticatorMasterSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	if err := secret.WriteFile(path, raw); err != nil {
		secret.Zero(raw)
		return nil, err
	}
	return secret.NewFromBytes(raw)
}

func (e *environment) sessionConfig() (session.Config, error) {
	algorithm, err := did.ParseAlgorithm(e.config.Identity.Algorithm)
	if err != nil {
		return session.Config{}, err
	}
	encoding, err := parseEncoding(e.config.Identity.Encoding)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Provider:          e.provider,
		Store:             e.store,
		Remote:            e.remote,
		RemoteIdentity:    e.config.Revocation.Identity,
		Algorithm:         algorithm,
		Encoding:          encoding,
		RevocationTTL:     e.config.Revocation.TTL,
		RevocationTimeout: e.config.Revocation.Timeout,
		Logger:            e.logger,
	}, nil
}

// open unlocks the registered identity.
func (e *environment) open(ctx context.Context) (*session.Session, error) {
	sessionConfig, err := e.sessionConfig()
	if err != nil {
		return nil, err
	}
	opened, err := session.Open(ctx, sessionConfig)
	if errors.Is(err, session.ErrNotRegistered) {
		return nil, fmt.Errorf("%w (run 'custody init' first)", err)
	}
	return opened, err
}

func (e *environment) Close() error {
	return e.store.Close()
}

func parseEncoding(name string) (multibase.Encoding, error) {
	switch name {
	case "", "base64":
		return multibase.Base64, nil
	case "base64url":
		return multibase.Base64url, nil
	}
	return 0, fmt.Errorf("unknown proof encoding %q", name)
}
