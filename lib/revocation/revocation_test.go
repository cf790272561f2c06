// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/veraison/go-cose"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/testutil"
	"github.com/bureau-foundation/custody/lib/ucan"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// countingAuthority answers Status from a map and counts calls.
type countingAuthority struct {
	mu      sync.Mutex
	revoked map[string]bool
	calls   int
	err     error
}

func (a *countingAuthority) Status(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return false, a.err
	}
	return a.revoked[id], nil
}

func (a *countingAuthority) Revoke(context.Context, []byte) (*Record, error) {
	return nil, errors.New("not implemented")
}

func (a *countingAuthority) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestCache(t *testing.T, authority Authority, fake *clock.FakeClock, registerer prometheus.Registerer) (*Cache, store.Store) {
	t.Helper()
	records := store.NewMemory()
	cache, err := NewCache(CacheConfig{Store: records, Authority: authority, Clock: fake, Registerer: registerer})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache, records
}

func TestCacheServesFreshEntriesWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{revoked: map[string]bool{}}
	cache, _ := newTestCache(t, authority, fake, nil)

	for range 3 {
		revoked, err := cache.IsRevoked(ctx, "bafy-one")
		if err != nil {
			t.Fatalf("IsRevoked: %v", err)
		}
		if revoked {
			t.Error("IsRevoked = true, want false")
		}
		fake.Advance(time.Minute)
	}
	if calls := authority.callCount(); calls != 1 {
		t.Errorf("authority calls = %d, want 1", calls)
	}
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{revoked: map[string]bool{}}
	cache, _ := newTestCache(t, authority, fake, nil)

	if _, err := cache.IsRevoked(ctx, "bafy-one"); err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	authority.mu.Lock()
	authority.revoked["bafy-one"] = true
	authority.mu.Unlock()

	fake.Advance(DefaultTTL - time.Second)
	revoked, err := cache.IsRevoked(ctx, "bafy-one")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Error("entry younger than the TTL was not served from cache")
	}

	fake.Advance(time.Second)
	revoked, err = cache.IsRevoked(ctx, "bafy-one")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("entry at the TTL was not refreshed")
	}
	if calls := authority.callCount(); calls != 2 {
		t.Errorf("authority calls = %d, want 2", calls)
	}

	entry, ok, err := cache.Entry(ctx, "bafy-one")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if !ok || !entry.Revoked || !entry.CheckedAt.Equal(fake.Now()) {
		t.Errorf("Entry = %+v, %v; want revoked at %v", entry, ok, fake.Now())
	}
}

func TestCacheFailsClosed(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{err: errors.New("connection refused")}
	cache, _ := newTestCache(t, authority, fake, nil)

	revoked, err := cache.IsRevoked(ctx, "bafy-one")
	if !errors.Is(err, ErrRevocationCheckFailed) {
		t.Fatalf("IsRevoked error = %v, want ErrRevocationCheckFailed", err)
	}
	if revoked {
		t.Error("failed check reported revoked = true")
	}
	if _, ok, _ := cache.Entry(ctx, "bafy-one"); ok {
		t.Error("failed check was cached")
	}
}

// blockingAuthority never answers before the context ends.
type blockingAuthority struct{}

func (blockingAuthority) Status(ctx context.Context, _ string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (blockingAuthority) Revoke(context.Context, []byte) (*Record, error) {
	return nil, errors.New("not implemented")
}

func TestCacheTimeoutIsFailure(t *testing.T) {
	cache, err := NewCache(CacheConfig{
		Store:     store.NewMemory(),
		Authority: blockingAuthority{},
		Timeout:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	result := make(chan error, 1)
	go func() {
		_, err := cache.IsRevoked(context.Background(), "bafy-one")
		result <- err
	}()
	err = testutil.RequireReceive(t, result, 5*time.Second, "IsRevoked did not honor its timeout")
	if !errors.Is(err, ErrRevocationCheckFailed) {
		t.Errorf("IsRevoked error = %v, want ErrRevocationCheckFailed", err)
	}
}

// gatedAuthority holds every Status call until release is closed.
type gatedAuthority struct {
	started chan string
	release chan struct{}
	calls   atomic.Int32
}

func (a *gatedAuthority) Status(ctx context.Context, id string) (bool, error) {
	a.calls.Add(1)
	a.started <- id
	select {
	case <-a.release:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *gatedAuthority) Revoke(context.Context, []byte) (*Record, error) {
	return nil, errors.New("not implemented")
}

func TestCacheSlowCheckDoesNotBlockOtherDelegations(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &gatedAuthority{started: make(chan string, 4), release: make(chan struct{})}
	cache, _ := newTestCache(t, authority, fake, nil)
	if err := cache.Set(ctx, "bafy-fresh", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	type answer struct {
		revoked bool
		err     error
	}
	lookup := func(ctx context.Context, id string) <-chan answer {
		result := make(chan answer, 1)
		go func() {
			revoked, err := cache.IsRevoked(ctx, id)
			result <- answer{revoked, err}
		}()
		return result
	}

	slow := lookup(ctx, "bafy-slow")
	started := testutil.RequireReceive(t, authority.started, 5*time.Second, "remote check did not start")
	if started != "bafy-slow" {
		t.Fatalf("remote check for %q, want bafy-slow", started)
	}

	fresh := testutil.RequireReceive(t, lookup(ctx, "bafy-fresh"), 5*time.Second, "cached lookup waited on another delegation's check")
	if fresh.err != nil || !fresh.revoked {
		t.Errorf("IsRevoked(bafy-fresh) = %v, %v; want true, nil", fresh.revoked, fresh.err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	abandoned := lookup(cancelled, "bafy-slow")
	cancel()
	gaveUp := testutil.RequireReceive(t, abandoned, 5*time.Second, "cancelled caller kept waiting")
	if !errors.Is(gaveUp.err, ErrRevocationCheckFailed) {
		t.Errorf("cancelled IsRevoked error = %v, want ErrRevocationCheckFailed", gaveUp.err)
	}

	close(authority.release)
	got := testutil.RequireReceive(t, slow, 5*time.Second, "waiting for the remote check")
	if got.err != nil || !got.revoked {
		t.Errorf("IsRevoked(bafy-slow) = %v, %v; want true, nil", got.revoked, got.err)
	}
	if calls := authority.calls.Load(); calls != 1 {
		t.Errorf("authority calls = %d, want 1", calls)
	}
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{revoked: map[string]bool{}}
	cache, _ := newTestCache(t, authority, fake, nil)

	if _, err := cache.IsRevoked(ctx, "bafy-one"); err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if err := cache.Invalidate(ctx, "bafy-one"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := cache.IsRevoked(ctx, "bafy-one"); err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if calls := authority.callCount(); calls != 2 {
		t.Errorf("authority calls = %d, want 2", calls)
	}
	if err := cache.Invalidate(ctx, "never-seen"); err != nil {
		t.Errorf("Invalidate(missing) = %v", err)
	}
}

func TestCachePersistsInStore(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{revoked: map[string]bool{"bafy-one": true}}
	first, records := newTestCache(t, authority, fake, nil)
	if _, err := first.IsRevoked(ctx, "bafy-one"); err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}

	second, err := NewCache(CacheConfig{Store: records, Authority: authority, Clock: fake})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	revoked, err := second.IsRevoked(ctx, "bafy-one")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("second cache lost the stored entry")
	}
	if calls := authority.callCount(); calls != 1 {
		t.Errorf("authority calls = %d, want 1", calls)
	}
}

func TestCacheLookupMetrics(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	fake := clock.Fake(epoch)
	authority := &countingAuthority{revoked: map[string]bool{}}
	cache, _ := newTestCache(t, authority, fake, registry)

	cache.IsRevoked(ctx, "bafy-one")
	cache.IsRevoked(ctx, "bafy-one")
	authority.err = errors.New("down")
	cache.IsRevoked(ctx, "bafy-two")

	for result, want := range map[string]float64{resultMiss: 1, resultHit: 1, resultError: 1} {
		if got := promtest.ToFloat64(cache.lookups.WithLabelValues(result)); got != want {
			t.Errorf("lookups{result=%q} = %v, want %v", result, got, want)
		}
	}
}

type principal struct {
	did    string
	signer cose.Signer
}

func newPrincipal(t *testing.T) principal {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, private)
	if err != nil {
		t.Fatalf("cose.NewSigner: %v", err)
	}
	identity, err := did.Format(did.Ed25519, public)
	if err != nil {
		t.Fatalf("did.Format: %v", err)
	}
	return principal{did: identity, signer: signer}
}

func grant(t *testing.T, from, to principal) *ucan.Chain {
	t.Helper()
	d, err := ucan.Issue(from.signer, ucan.Params{
		Issuer:       from.did,
		Audience:     to.did,
		Capabilities: []ucan.Capability{{With: from.did, Can: "upload/add"}},
		Expiration:   epoch.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ucan.Issue: %v", err)
	}
	return ucan.NewChain(d)
}

func startRegistryServer(t *testing.T, identity string, fake *clock.FakeClock) (*Registry, *HTTPClient) {
	t.Helper()
	registry, err := NewRegistry(RegistryConfig{Store: store.NewMemory(), Identity: identity, Clock: fake})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	server := httptest.NewServer(NewHandler(registry, nil))
	t.Cleanup(server.Close)
	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, RateLimit: 100, Burst: 10})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return registry, client
}

func TestHTTPRevokeAndStatus(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	service := newPrincipal(t)
	_, client := startRegistryServer(t, service.did, fake)

	alice := newPrincipal(t)
	bob := newPrincipal(t)
	target := grant(t, alice, bob)
	id := target.Root.CID.String()

	revoked, err := client.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if revoked {
		t.Fatal("Status before revocation = true")
	}

	invocation, err := ucan.NewRevocation(alice.signer, alice.did, service.did, target, fake.Now())
	if err != nil {
		t.Fatalf("NewRevocation: %v", err)
	}
	record, err := client.Revoke(ctx, invocation)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if record.DelegationID != id || record.RevokedBy != alice.did || !record.RevokedAt.Equal(epoch) {
		t.Errorf("record = %+v, want %s revoked by %s at %v", record, id, alice.did, epoch)
	}

	revoked, err = client.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !revoked {
		t.Error("Status after revocation = false")
	}

	// The audience may revoke too; the first record stands.
	fake.Advance(time.Minute)
	again, err := ucan.NewRevocation(bob.signer, bob.did, service.did, target, fake.Now())
	if err != nil {
		t.Fatalf("NewRevocation: %v", err)
	}
	record, err = client.Revoke(ctx, again)
	if err != nil {
		t.Fatalf("Revoke (audience): %v", err)
	}
	if record.RevokedBy != alice.did {
		t.Errorf("RevokedBy = %s, want the first revoker %s", record.RevokedBy, alice.did)
	}
}

func TestHTTPRevokeRejected(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(epoch)
	service := newPrincipal(t)
	_, client := startRegistryServer(t, service.did, fake)

	if _, err := client.Revoke(ctx, []byte("garbage")); !errors.Is(err, ErrRejected) {
		t.Errorf("Revoke(garbage) error = %v, want ErrRejected", err)
	}

	alice := newPrincipal(t)
	target := grant(t, alice, newPrincipal(t))
	elsewhere := newPrincipal(t)
	invocation, err := ucan.NewRevocation(alice.signer, alice.did, elsewhere.did, target, fake.Now())
	if err != nil {
		t.Fatalf("NewRevocation: %v", err)
	}
	if _, err := client.Revoke(ctx, invocation); !errors.Is(err, ErrRejected) {
		t.Errorf("Revoke(misaddressed) error = %v, want ErrRejected", err)
	}
}

func TestHTTPStatusServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		http.Error(writer, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	if _, err := client.Status(context.Background(), "bafy-one"); err == nil {
		t.Error("Status succeeded on HTTP 503")
	}

	// Through the cache, a server error is a failed check.
	cache, err := NewCache(CacheConfig{Store: store.NewMemory(), Authority: client})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if _, err := cache.IsRevoked(context.Background(), "bafy-one"); !errors.Is(err, ErrRevocationCheckFailed) {
		t.Errorf("IsRevoked error = %v, want ErrRevocationCheckFailed", err)
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com", "not a url", "https://"} {
		if _, err := NewHTTPClient(HTTPClientConfig{BaseURL: base}); err == nil {
			t.Errorf("NewHTTPClient(%q) succeeded", base)
		}
	}
}
