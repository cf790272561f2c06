// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/store"
)

func newTestRegistry(t *testing.T, metrics *prometheus.Registry) *revocation.Registry {
	t.Helper()
	registry, err := revocation.NewRegistry(revocation.RegistryConfig{
		Store:      store.NewMemory(),
		Registerer: metrics,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)
	return response.StatusCode, string(body)
}

func TestHandlerServesMetricsWhenEnabled(t *testing.T) {
	metrics := prometheus.NewRegistry()
	server := httptest.NewServer(newHandler(newTestRegistry(t, metrics), metrics, true, nil))
	defer server.Close()

	if status, _ := get(t, server.URL+"/revocations/bafyunknown"); status != http.StatusNotFound {
		t.Errorf("status of unknown delegation = %d, want 404", status)
	}
	status, _ := get(t, server.URL+"/metrics")
	if status != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", status)
	}
}

func TestHandlerOmitsMetricsWhenDisabled(t *testing.T) {
	metrics := prometheus.NewRegistry()
	server := httptest.NewServer(newHandler(newTestRegistry(t, metrics), metrics, false, nil))
	defer server.Close()

	if status, _ := get(t, server.URL+"/metrics"); status == http.StatusOK {
		t.Error("/metrics served with metrics disabled")
	}
}

func TestLoadConfigRequiresStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custody.jsonc")
	content := `{
  // Registry without a database.
  "environment": "development",
  "paths": {"store": "` + filepath.Join(dir, "custody.db") + `"},
  "registry": {"store": ""},
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := loadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "registry.store") {
		t.Fatalf("loadConfig: err = %v, want registry.store error", err)
	}
}
