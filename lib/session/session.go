// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/authority"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/credential"
	"github.com/bureau-foundation/custody/lib/custodian"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/store"
)

var (
	// ErrNotRegistered is returned by Open when the store holds no
	// credential record.
	ErrNotRegistered = errors.New("session: no credential registered")

	// ErrAlreadyRegistered is returned by Register when the store
	// already holds a credential record. Registering again would
	// orphan the existing archive.
	ErrAlreadyRegistered = errors.New("session: a credential is already registered")

	// ErrNoArchive is returned by Open when a credential is registered
	// but no encrypted archive was stored.
	ErrNoArchive = errors.New("session: no key archive stored")

	// ErrIdentityMismatch is returned by Open when the restored
	// keypair is not the identity recorded at registration.
	ErrIdentityMismatch = errors.New("session: restored identity does not match the stored identity")
)

// Config holds everything a session needs from its environment.
type Config struct {
	// Provider runs the credential ceremonies. Required.
	Provider *credential.Provider

	// Store holds the credential, archive, identity, delegation, and
	// revocation cache records. Required.
	Store store.Store

	// Remote is the revocation authority: the storage service's
	// revocation endpoint. Required.
	Remote revocation.Authority

	// RemoteIdentity addresses revocation invocations. Empty addresses
	// them to the session's own identity.
	RemoteIdentity string

	// Algorithm is the signing algorithm Register generates. Empty
	// means Ed25519. Open restores whatever the archive holds.
	Algorithm did.Algorithm

	// Encoding is the multibase encoding for created proofs. Zero
	// means base64.
	Encoding multibase.Encoding

	// RevocationTTL and RevocationTimeout tune the revocation cache.
	// Zero uses the cache defaults.
	RevocationTTL     time.Duration
	RevocationTimeout time.Duration

	Clock      clock.Clock
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Provider == nil || c.Store == nil || c.Remote == nil {
		return fmt.Errorf("session: provider, store, and revocation authority are required")
	}
	if c.Algorithm == "" {
		c.Algorithm = did.Ed25519
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Session is an unlocked identity: a custodian holding the signing
// key and the authority built on it. Close it to zero the key.
type Session struct {
	custodian   *custodian.Handle
	authority   *authority.Authority
	revocations *revocation.Cache
	store       store.Store
	identity    store.IdentityRecord
	logger      *slog.Logger
}

// Register creates a credential, generates a signing keypair inside a
// new custodian, and persists the credential record, the sealed
// archive, and the public identity.
func Register(ctx context.Context, config Config, options credential.CreateOptions) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	var existing store.CredentialRecord
	if found, err := store.GetJSON(ctx, config.Store, store.KeyCredential, &existing); err != nil {
		return nil, err
	} else if found {
		return nil, ErrAlreadyRegistered
	}

	info, err := config.Provider.CreateCredential(ctx, options)
	if err != nil {
		return nil, err
	}
	defer info.Seed.Zero()
	if info.Seed.Source == credential.SeedSourceCredentialID {
		config.Logger.Warn("authenticator has no PRF support, deriving the seed from the credential id")
	}

	handle, err := startCustodian(ctx, config, info.Seed)
	if err != nil {
		return nil, err
	}
	session, err := register(ctx, config, handle, info)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return session, nil
}

func register(ctx context.Context, config Config, handle *custodian.Handle, info *credential.Info) (*Session, error) {
	keys, err := handle.GenerateKeypair(ctx, config.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("session: generating keypair: %w", err)
	}
	if keys.Archive == nil {
		return nil, fmt.Errorf("session: custodian returned no archive for %s", keys.Identity)
	}
	defer keys.Archive.Zero()

	sealed, err := archive.Seal(ctx, handle, keys.Archive)
	if err != nil {
		return nil, err
	}
	identity := store.IdentityRecord{
		Algorithm: keys.Algorithm,
		PublicKey: keys.PublicKey,
		Identity:  keys.Identity,
	}

	// The credential record is written last; its presence marks the
	// registration complete.
	if err := store.SetJSON(ctx, config.Store, store.KeyArchive, sealed); err != nil {
		return nil, err
	}
	if err := store.SetJSON(ctx, config.Store, store.KeyIdentity, identity); err != nil {
		return nil, err
	}
	if err := store.SetJSON(ctx, config.Store, store.KeyCredential, info.Record()); err != nil {
		return nil, err
	}
	config.Logger.Info("identity registered",
		"identity", identity.Identity,
		"algorithm", identity.Algorithm,
		"credential_id", info.CredentialID,
	)
	return newSession(config, handle, identity)
}

// Open authenticates the registered credential, re-derives the
// protection key, and restores the stored keypair into a new
// custodian.
//
// A seed that differs from the one used at registration fails with
// custodian.ErrDecryptionFailed. Nothing is written to the store.
func Open(ctx context.Context, config Config) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	var record store.CredentialRecord
	found, err := store.GetJSON(ctx, config.Store, store.KeyCredential, &record)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotRegistered
	}

	info, err := config.Provider.Authenticate(ctx, record.CredentialID, record.PRFInput)
	if err != nil {
		return nil, err
	}
	defer info.Seed.Zero()
	if string(info.Seed.Source) != record.PRFSource {
		config.Logger.Warn("seed source differs from registration",
			"registered", record.PRFSource,
			"now", info.Seed.Source,
		)
	}

	handle, err := startCustodian(ctx, config, info.Seed)
	if err != nil {
		return nil, err
	}
	session, err := open(ctx, config, handle)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return session, nil
}

func open(ctx context.Context, config Config, handle *custodian.Handle) (*Session, error) {
	var sealed archive.EncryptedRecord
	found, err := store.GetJSON(ctx, config.Store, store.KeyArchive, &sealed)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoArchive
	}
	opened, err := archive.Open(ctx, handle, &sealed)
	if err != nil {
		return nil, err
	}
	defer opened.Zero()

	keys, err := handle.RestoreKeypair(ctx, opened)
	if err != nil {
		return nil, fmt.Errorf("session: restoring keypair: %w", err)
	}
	identity := store.IdentityRecord{
		Algorithm: keys.Algorithm,
		PublicKey: keys.PublicKey,
		Identity:  keys.Identity,
	}
	var stored store.IdentityRecord
	if found, err := store.GetJSON(ctx, config.Store, store.KeyIdentity, &stored); err != nil {
		return nil, err
	} else if found && stored.Identity != identity.Identity {
		return nil, fmt.Errorf("%w: stored %s, archive holds %s", ErrIdentityMismatch, stored.Identity, identity.Identity)
	}
	config.Logger.Info("identity unlocked", "identity", identity.Identity)
	return newSession(config, handle, identity)
}

// startCustodian launches a custodian and hands it the seed.
func startCustodian(ctx context.Context, config Config, seed credential.Seed) (*custodian.Handle, error) {
	handle, err := custodian.Start(custodian.Options{
		Logger:     config.Logger.With("component", "custodian"),
		Registerer: config.Registerer,
	})
	if err != nil {
		return nil, err
	}
	if err := handle.Init(ctx, seed.Bytes); err != nil {
		handle.Close()
		return nil, fmt.Errorf("session: initializing custodian: %w", err)
	}
	return handle, nil
}

func newSession(config Config, handle *custodian.Handle, identity store.IdentityRecord) (*Session, error) {
	cache, err := revocation.NewCache(revocation.CacheConfig{
		Store:      config.Store,
		Authority:  config.Remote,
		Clock:      config.Clock,
		TTL:        config.RevocationTTL,
		Timeout:    config.RevocationTimeout,
		Logger:     config.Logger.With("component", "revocation"),
		Registerer: config.Registerer,
	})
	if err != nil {
		return nil, err
	}
	delegations, err := authority.New(authority.Config{
		Custodian:      handle,
		Store:          config.Store,
		Revocations:    cache,
		Remote:         config.Remote,
		RemoteIdentity: config.RemoteIdentity,
		Encoding:       config.Encoding,
		Clock:          config.Clock,
		Logger:         config.Logger.With("component", "authority"),
	})
	if err != nil {
		return nil, err
	}
	return &Session{
		custodian:   handle,
		authority:   delegations,
		revocations: cache,
		store:       config.Store,
		identity:    identity,
		logger:      config.Logger,
	}, nil
}

// Identity returns the public record of the session's signing key.
func (s *Session) Identity() store.IdentityRecord { return s.identity }

// Authority returns the delegation authority signing as the session's
// identity.
func (s *Session) Authority() *authority.Authority { return s.authority }

// Custodian returns the handle to the session's custodian.
func (s *Session) Custodian() *custodian.Handle { return s.custodian }

// Revocations returns the session's revocation cache.
func (s *Session) Revocations() *revocation.Cache { return s.revocations }

// Escrow re-encrypts the stored archive to the given age recipients
// for offline recovery. The plaintext never leaves this process.
func (s *Session) Escrow(ctx context.Context, recipients []string) ([]byte, error) {
	var sealed archive.EncryptedRecord
	found, err := store.GetJSON(ctx, s.store, store.KeyArchive, &sealed)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoArchive
	}
	escrowed, err := archive.Escrow(ctx, s.custodian, &sealed, recipients)
	if err != nil {
		return nil, err
	}
	s.logger.Info("archive escrowed", "identity", s.identity.Identity, "recipients", len(recipients))
	return escrowed, nil
}

// Lock discards the protection key and signing key. The session is
// unusable afterwards; Open a new one to continue.
func (s *Session) Lock(ctx context.Context) error {
	return s.custodian.Lock(ctx)
}

// Close locks the custodian and stops its goroutine.
func (s *Session) Close() error {
	return s.custodian.Close()
}

// Forget removes every record a session writes, leaving the store as
// it was before Register. Delegations and the revocation cache go too.
func Forget(ctx context.Context, s store.Store) error {
	for _, key := range []string{
		store.KeyCredential,
		store.KeyArchive,
		store.KeyIdentity,
		store.KeyDelegationsCreated,
		store.KeyDelegationsReceived,
		store.KeyRevocationCache,
	} {
		if err := s.Remove(ctx, key); err != nil {
			return fmt.Errorf("session: removing %s: %w", key, err)
		}
	}
	return nil
}
