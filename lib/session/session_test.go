// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/authority"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/credential"
	"github.com/bureau-foundation/custody/lib/custodian"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/testutil"
)

func testProvider(t *testing.T, disablePRF bool) *credential.Provider {
	t.Helper()
	buffer, err := secret.NewFromBytes(testutil.RandomBytes(t, 32))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	authenticator, err := credential.NewSoftwareAuthenticator(credential.SoftwareConfig{Master: buffer, DisablePRF: disablePRF})
	if err != nil {
		t.Fatalf("NewSoftwareAuthenticator: %v", err)
	}
	provider, err := credential.NewProvider(credential.ProviderConfig{
		Authenticator:  authenticator,
		RelyingPartyID: "custody.test",
	})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return provider
}

func testConfig(t *testing.T, provider *credential.Provider, records store.Store, remote revocation.Authority) Config {
	t.Helper()
	return Config{
		Provider: provider,
		Store:    records,
		Remote:   remote,
		Clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func testRegistry(t *testing.T) *revocation.Registry {
	t.Helper()
	registry, err := revocation.NewRegistry(revocation.RegistryConfig{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func mustRegister(t *testing.T, config Config) *Session {
	t.Helper()
	session, err := Register(context.Background(), config, credential.CreateOptions{UserName: "alice"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestRegisterThenOpen(t *testing.T) {
	for _, test := range []struct {
		name       string
		algorithm  did.Algorithm
		disablePRF bool
	}{
		{"ed25519", did.Ed25519, false},
		{"p256", did.P256, false},
		{"fallback seed", did.Ed25519, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			records := store.NewMemory()
			config := testConfig(t, testProvider(t, test.disablePRF), records, testRegistry(t))
			config.Algorithm = test.algorithm

			registered := mustRegister(t, config)
			identity := registered.Identity()
			if identity.Algorithm != string(test.algorithm) {
				t.Errorf("Algorithm = %q, want %q", identity.Algorithm, test.algorithm)
			}
			registered.Close()

			reopened, err := Open(ctx, config)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer reopened.Close()
			if reopened.Identity().Identity != identity.Identity {
				t.Errorf("reopened identity = %s, want %s", reopened.Identity().Identity, identity.Identity)
			}
			status, err := reopened.Custodian().Status(ctx)
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if status.State != custodian.StateKeyLoaded {
				t.Errorf("State = %v, want %v", status.State, custodian.StateKeyLoaded)
			}
		})
	}
}

func TestRegisterPersistsOnlyPublicRecords(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	config := testConfig(t, testProvider(t, false), records, testRegistry(t))
	session := mustRegister(t, config)

	keys := records.Keys()
	slices.Sort(keys)
	want := []string{store.KeyArchive, store.KeyCredential, store.KeyIdentity}
	if !slices.Equal(keys, want) {
		t.Errorf("store keys = %v, want %v", keys, want)
	}

	var sealedRecord archive.EncryptedRecord
	if _, err := store.GetJSON(ctx, records, store.KeyArchive, &sealedRecord); err != nil {
		t.Fatalf("GetJSON archive: %v", err)
	}
	if len(sealedRecord.Nonce) == 0 || len(sealedRecord.Ciphertext) == 0 {
		t.Fatalf("archive record = %+v, want ciphertext and nonce", sealedRecord)
	}
	// The archive opens with the session's custodian and names the
	// session's identity.
	opened, err := archive.Open(ctx, session.Custodian(), &sealedRecord)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	defer opened.Zero()
	if opened.ID != session.Identity().Identity {
		t.Errorf("archive ID = %s, want %s", opened.ID, session.Identity().Identity)
	}
}

func TestRegisterTwice(t *testing.T) {
	records := store.NewMemory()
	config := testConfig(t, testProvider(t, false), records, testRegistry(t))
	mustRegister(t, config)
	if _, err := Register(context.Background(), config, credential.CreateOptions{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestOpenUnregistered(t *testing.T) {
	config := testConfig(t, testProvider(t, false), store.NewMemory(), testRegistry(t))
	if _, err := Open(context.Background(), config); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Open error = %v, want ErrNotRegistered", err)
	}
}

func TestOpenWithDifferentAuthenticator(t *testing.T) {
	records := store.NewMemory()
	registry := testRegistry(t)
	mustRegister(t, testConfig(t, testProvider(t, false), records, registry))

	// Another authenticator answers for the same credential id with a
	// different PRF secret, so the seed differs.
	_, err := Open(context.Background(), testConfig(t, testProvider(t, false), records, registry))
	if !errors.Is(err, custodian.ErrDecryptionFailed) {
		t.Fatalf("Open error = %v, want custodian.ErrDecryptionFailed", err)
	}
	if errors.Is(err, archive.ErrCorruptArchive) {
		t.Error("a wrong seed was reported as a corrupt archive")
	}
}

func TestOpenMissingArchive(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	config := testConfig(t, testProvider(t, false), records, testRegistry(t))
	mustRegister(t, config)
	if err := records.Remove(ctx, store.KeyArchive); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := Open(ctx, config); !errors.Is(err, ErrNoArchive) {
		t.Errorf("Open error = %v, want ErrNoArchive", err)
	}
}

func TestOpenIdentityMismatch(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	config := testConfig(t, testProvider(t, false), records, testRegistry(t))
	mustRegister(t, config)
	if err := store.SetJSON(ctx, records, store.KeyIdentity, store.IdentityRecord{Identity: "did:key:zSomeoneElse"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if _, err := Open(ctx, config); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("Open error = %v, want ErrIdentityMismatch", err)
	}
}

func TestSessionsDelegate(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	alice := mustRegister(t, testConfig(t, testProvider(t, false), store.NewMemory(), registry))
	bob := mustRegister(t, testConfig(t, testProvider(t, false), store.NewMemory(), registry))

	created, err := alice.Authority().CreateDelegation(ctx, authority.CreateRequest{
		Audience: bob.Identity().Identity,
		Actions:  []string{"store/add"},
		TTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateDelegation: %v", err)
	}
	if _, err := bob.Authority().ImportDelegation(ctx, created.Proof); err != nil {
		t.Fatalf("ImportDelegation: %v", err)
	}
	if err := bob.Authority().Authorize(ctx, created.ID, alice.Identity().Identity, "store/add"); err != nil {
		t.Errorf("Authorize: %v", err)
	}
}

func TestEscrow(t *testing.T) {
	ctx := context.Background()
	session := mustRegister(t, testConfig(t, testProvider(t, false), store.NewMemory(), testRegistry(t)))

	operator, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("sealed.GenerateKeypair: %v", err)
	}
	defer operator.Close()

	escrowed, err := session.Escrow(ctx, []string{operator.PublicKey})
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	recovered, err := archive.Recover(escrowed, operator.PrivateKey)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	defer recovered.Zero()
	if recovered.ID != session.Identity().Identity {
		t.Errorf("recovered archive ID = %s, want %s", recovered.ID, session.Identity().Identity)
	}
}

func TestLockDisablesSigning(t *testing.T) {
	ctx := context.Background()
	session := mustRegister(t, testConfig(t, testProvider(t, false), store.NewMemory(), testRegistry(t)))
	if err := session.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err := session.Authority().CreateDelegation(ctx, authority.CreateRequest{
		Audience: "did:key:z6MkBob",
		Actions:  []string{"store/add"},
	})
	if err == nil {
		t.Fatal("CreateDelegation succeeded on a locked session")
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	records := store.NewMemory()
	config := testConfig(t, testProvider(t, false), records, testRegistry(t))
	mustRegister(t, config)
	if err := Forget(ctx, records); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if keys := records.Keys(); len(keys) != 0 {
		t.Errorf("store keys after Forget = %v, want none", keys)
	}
	if _, err := Open(ctx, config); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Open after Forget error = %v, want ErrNotRegistered", err)
	}
}
