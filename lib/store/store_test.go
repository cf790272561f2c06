// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/custody/lib/testutil"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := OpenSQLite(testutil.TempPath(t, "custody.db"), nil)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() {
			if err := s.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
		fn(t, s)
	})
}

func TestGetSetRemove(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.Get(ctx, KeyArchive); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
		}

		if err := s.Set(ctx, KeyArchive, []byte(`{"ciphertext":"AA=="}`)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, KeyArchive, []byte(`{"ciphertext":"AQ=="}`)); err != nil {
			t.Fatalf("Set (overwrite): %v", err)
		}
		value, err := s.Get(ctx, KeyArchive)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(value) != `{"ciphertext":"AQ=="}` {
			t.Errorf("Get = %s, want the overwritten value", value)
		}

		if err := s.Remove(ctx, KeyArchive); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if err := s.Remove(ctx, KeyArchive); err != nil {
			t.Fatalf("Remove (missing): %v", err)
		}
		if _, err := s.Get(ctx, KeyArchive); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after Remove: err = %v, want ErrNotFound", err)
		}
	})
}

func TestJSONRecords(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var missing CredentialRecord
		found, err := GetJSON(ctx, s, KeyCredential, &missing)
		if err != nil || found {
			t.Fatalf("GetJSON on empty store = (%v, %v), want (false, nil)", found, err)
		}

		record := CredentialRecord{
			CredentialID:    "cred-1",
			RawCredentialID: []byte{1, 2, 3},
			PublicKey:       []byte{4, 5, 6},
			PRFInput:        []byte{7, 8},
			PRFSource:       "prf",
		}
		if err := SetJSON(ctx, s, KeyCredential, record); err != nil {
			t.Fatalf("SetJSON: %v", err)
		}
		var loaded CredentialRecord
		found, err = GetJSON(ctx, s, KeyCredential, &loaded)
		if err != nil || !found {
			t.Fatalf("GetJSON = (%v, %v)", found, err)
		}
		if loaded.CredentialID != record.CredentialID || loaded.PRFSource != record.PRFSource ||
			string(loaded.PRFInput) != string(record.PRFInput) {
			t.Errorf("loaded %+v, want %+v", loaded, record)
		}
	})
}

func TestDelegationList(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		list, err := Delegations(ctx, s, KeyDelegationsReceived)
		if err != nil {
			t.Fatalf("Delegations: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("empty store has %d delegations", len(list))
		}

		for _, id := range []string{"bafy-one", "bafy-two"} {
			err := AppendDelegation(ctx, s, KeyDelegationsReceived, DelegationInfo{
				ID:           id,
				Issuer:       "did:key:zA",
				Audience:     "did:key:zB",
				Capabilities: []Capability{{With: "did:key:zA", Can: "upload/add"}},
				CreatedAt:    created,
				ExpiresAt:    created.Add(time.Hour),
			})
			if err != nil {
				t.Fatalf("AppendDelegation(%s): %v", id, err)
			}
		}

		revokedAt := created.Add(10 * time.Minute)
		err = UpdateDelegation(ctx, s, KeyDelegationsReceived, "bafy-two", func(info *DelegationInfo) {
			info.Revoked = true
			info.RevokedAt = revokedAt
			info.RevokedBy = "did:key:zA"
		})
		if err != nil {
			t.Fatalf("UpdateDelegation: %v", err)
		}

		info, found, err := FindDelegation(ctx, s, KeyDelegationsReceived, "bafy-two")
		if err != nil || !found {
			t.Fatalf("FindDelegation = (%v, %v)", found, err)
		}
		if !info.Revoked || !info.RevokedAt.Equal(revokedAt) || info.RevokedBy != "did:key:zA" {
			t.Errorf("revocation fields not persisted: %+v", info)
		}
		if !info.ExpiresAt.Equal(created.Add(time.Hour)) {
			t.Errorf("ExpiresAt = %v", info.ExpiresAt)
		}

		other, _, _ := FindDelegation(ctx, s, KeyDelegationsReceived, "bafy-one")
		if other.Revoked {
			t.Error("UpdateDelegation touched the wrong entry")
		}

		err = UpdateDelegation(ctx, s, KeyDelegationsReceived, "bafy-missing", func(*DelegationInfo) {})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateDelegation(missing) err = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := testutil.TempPath(t, "custody.db")

	first, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := first.Set(ctx, KeyIdentity, []byte(`{"identity":"did:key:zA"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	value, err := second.Get(ctx, KeyIdentity)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(value) != `{"identity":"did:key:zA"}` {
		t.Errorf("Get = %s", value)
	}
}

func TestMemoryKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Set(ctx, KeyIdentity, []byte("{}"))
	m.Set(ctx, KeyArchive, []byte("{}"))
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != KeyArchive || keys[1] != KeyIdentity {
		t.Errorf("Keys = %v", keys)
	}
}
