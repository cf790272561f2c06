// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"crypto/rand"
	"path/filepath"
	"testing"
)

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(t testing.TB, n int) []byte {
	t.Helper()
	buffer := make([]byte, n)
	if _, err := rand.Read(buffer); err != nil {
		t.Fatalf("reading %d random bytes: %v", n, err)
	}
	return buffer
}

// TempPath returns a path named name inside a directory removed when
// the test completes. The file itself is not created.
func TempPath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}
