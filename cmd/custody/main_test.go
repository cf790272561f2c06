// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/multiformats/go-multibase"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/authority"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/session"
	"github.com/bureau-foundation/custody/lib/store"
)

func writeConfig(t *testing.T, dir, revocationURL string) string {
	t.Helper()
	path := filepath.Join(dir, "custody.yaml")
	content := fmt.Sprintf(`environment: development
paths:
  root: %[1]s
  store: %[1]s/custody.db
  authenticator: %[1]s/authenticator.key
identity:
  algorithm: ed25519
  encoding: base64url
revocation:
  url: %[2]s
log:
  level: error
  format: json
`, dir, revocationURL)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	command := root()
	command.SetOutput(&testWriter{t: t})
	return command.Execute(context.Background(), args)
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func otherIdentity(t *testing.T) string {
	t.Helper()
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	identity, err := did.Format(did.Ed25519, publicKey)
	if err != nil {
		t.Fatalf("did.Format: %v", err)
	}
	return identity
}

func readDelegations(t *testing.T, dir, key string) []store.DelegationInfo {
	t.Helper()
	records, err := store.OpenSQLite(filepath.Join(dir, "custody.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer records.Close()
	delegations, err := store.Delegations(context.Background(), records, key)
	if err != nil {
		t.Fatalf("Delegations: %v", err)
	}
	return delegations
}

func TestIdentityAndDelegationLifecycle(t *testing.T) {
	dir := t.TempDir()
	registry, err := revocation.NewRegistry(revocation.RegistryConfig{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	server := httptest.NewServer(revocation.NewHandler(registry, nil))
	defer server.Close()
	configPath := writeConfig(t, dir, server.URL)

	if err := execute(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "authenticator.key"))
	if err != nil {
		t.Fatalf("authenticator secret not created: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("authenticator secret mode = %o, want 600", info.Mode().Perm())
	}
	if err := execute(t, "init", "--config", configPath); !errors.Is(err, session.ErrAlreadyRegistered) {
		t.Fatalf("second init: err = %v, want ErrAlreadyRegistered", err)
	}
	if err := execute(t, "whoami", "--config", configPath, "--json"); err != nil {
		t.Fatalf("whoami: %v", err)
	}

	audience := otherIdentity(t)
	if err := execute(t, "delegation", "create", "--config", configPath,
		"--audience", audience, "--can", "upload/add", "--ttl", "1h"); err != nil {
		t.Fatalf("delegation create: %v", err)
	}
	created := readDelegations(t, dir, store.KeyDelegationsCreated)
	if len(created) != 1 {
		t.Fatalf("created delegations = %d, want 1", len(created))
	}
	if created[0].Audience != audience {
		t.Errorf("audience = %q, want %q", created[0].Audience, audience)
	}
	if until := time.Until(created[0].ExpiresAt); until <= 0 || until > time.Hour {
		t.Errorf("expires in %v, want within an hour", until)
	}

	if err := execute(t, "delegation", "revoke", "--config", configPath, created[0].ID); err != nil {
		t.Fatalf("delegation revoke: %v", err)
	}
	revoked, err := registry.Status(context.Background(), created[0].ID)
	if err != nil || !revoked {
		t.Fatalf("registry status = %v, %v; want revoked", revoked, err)
	}
	if after := readDelegations(t, dir, store.KeyDelegationsCreated); !after[0].Revoked {
		t.Error("local record not marked revoked")
	}
	if err := execute(t, "delegation", "status", "--config", configPath, created[0].ID); err != nil {
		t.Fatalf("delegation status: %v", err)
	}

	if err := execute(t, "forget", "--config", configPath); err == nil {
		t.Fatal("forget without --yes succeeded")
	}
	if err := execute(t, "forget", "--config", configPath, "--yes"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if err := execute(t, "whoami", "--config", configPath); !errors.Is(err, session.ErrNotRegistered) {
		t.Fatalf("whoami after forget: err = %v, want ErrNotRegistered", err)
	}
}

func TestAuthorizeUnknownDelegationExitsOne(t *testing.T) {
	dir := t.TempDir()
	registry, err := revocation.NewRegistry(revocation.RegistryConfig{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	server := httptest.NewServer(revocation.NewHandler(registry, nil))
	defer server.Close()
	configPath := writeConfig(t, dir, server.URL)

	if err := execute(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	err = execute(t, "delegation", "authorize", "--config", configPath,
		"--with", "did:key:z6MkExample", "--can", "upload/add", "bafyunknown")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("authorize: err = %v, want exit code 1", err)
	}
}

func TestEscrowKeygenSealRecover(t *testing.T) {
	dir := t.TempDir()
	registry, err := revocation.NewRegistry(revocation.RegistryConfig{Store: store.NewMemory()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	server := httptest.NewServer(revocation.NewHandler(registry, nil))
	defer server.Close()
	configPath := writeConfig(t, dir, server.URL)

	if err := execute(t, "init", "--config", configPath); err != nil {
		t.Fatalf("init: %v", err)
	}
	keyPath := filepath.Join(dir, "escrow.key")
	if err := execute(t, "escrow", "keygen", "--output", keyPath); err != nil {
		t.Fatalf("escrow keygen: %v", err)
	}
	if err := execute(t, "escrow", "keygen", "--output", keyPath); err == nil {
		t.Fatal("keygen overwrote an existing key")
	}
	if err := execute(t, "escrow", "seal", "--config", configPath); err == nil {
		t.Fatal("seal without recipients succeeded")
	}
}

func TestParseEncoding(t *testing.T) {
	cases := map[string]multibase.Encoding{
		"":          multibase.Base64,
		"base64":    multibase.Base64,
		"base64url": multibase.Base64url,
	}
	for name, want := range cases {
		got, err := parseEncoding(name)
		if err != nil || got != want {
			t.Errorf("parseEncoding(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := parseEncoding("base58"); err == nil {
		t.Error("parseEncoding accepted base58")
	}
}

func TestIsDenial(t *testing.T) {
	denials := []error{
		&authority.DelegationError{DelegationID: "x", Err: authority.ErrDelegationRevoked},
		fmt.Errorf("checking: %w", authority.ErrRevocationCheckFailed),
		authority.ErrUnknownDelegation,
	}
	for _, err := range denials {
		if !isDenial(err) {
			t.Errorf("isDenial(%v) = false", err)
		}
	}
	if isDenial(errors.New("disk on fire")) {
		t.Error("isDenial treated an operational error as a verdict")
	}
}

func TestDelegationState(t *testing.T) {
	if got := delegationState(store.DelegationInfo{Revoked: true}); got != "revoked" {
		t.Errorf("revoked record state = %q", got)
	}
	if got := delegationState(store.DelegationInfo{ExpiresAt: time.Now().Add(-time.Minute)}); got != "expired" {
		t.Errorf("expired record state = %q", got)
	}
	if got := delegationState(store.DelegationInfo{}); got != "active" {
		t.Errorf("open-ended record state = %q", got)
	}
}
