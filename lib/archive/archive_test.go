// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/custody/lib/archive"
	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/custodian"
	"github.com/bureau-foundation/custody/lib/did"
	"github.com/bureau-foundation/custody/lib/sealed"
)

func initializedCustodian(t *testing.T, seed byte) *custodian.Handle {
	t.Helper()
	handle, err := custodian.Start(custodian.Options{})
	if err != nil {
		t.Fatalf("custodian.Start: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	if err := handle.Init(context.Background(), bytes.Repeat([]byte{seed}, 32)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return handle
}

func generatedArchive(t *testing.T, handle *custodian.Handle) *archive.KeyPairArchive {
	t.Helper()
	keys, err := handle.GenerateKeypair(context.Background(), did.Ed25519)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return keys.Archive
}

func TestSealOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	handle := initializedCustodian(t, 1)
	original := generatedArchive(t, handle)

	record, err := archive.Seal(ctx, handle, original)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(record.Ciphertext, original.Keys[original.ID]) {
		t.Fatal("sealed record contains the private key")
	}

	opened, err := archive.Open(ctx, handle, record)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.ID != original.ID {
		t.Errorf("ID = %s, want %s", opened.ID, original.ID)
	}
	if !bytes.Equal(opened.Keys[opened.ID], original.Keys[original.ID]) {
		t.Error("opened private key differs from the sealed one")
	}
}

func TestOpenWithDifferentSeed(t *testing.T) {
	ctx := context.Background()
	sealer := initializedCustodian(t, 1)
	record, err := archive.Seal(ctx, sealer, generatedArchive(t, sealer))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	other := initializedCustodian(t, 2)
	_, err = archive.Open(ctx, other, record)
	if !errors.Is(err, custodian.ErrDecryptionFailed) {
		t.Errorf("Open with different seed error = %v, want ErrDecryptionFailed", err)
	}
	if errors.Is(err, archive.ErrCorruptArchive) {
		t.Error("decryption failure reported as a corrupt archive")
	}
}

func TestOpenCorruptPlaintext(t *testing.T) {
	ctx := context.Background()
	handle := initializedCustodian(t, 1)

	garbage, err := codec.Marshal(map[string]string{"not": "an archive"})
	if err != nil {
		t.Fatalf("codec.Marshal: %v", err)
	}
	for name, plaintext := range map[string][]byte{
		"not cbor":     []byte("plain text"),
		"wrong schema": garbage,
	} {
		t.Run(name, func(t *testing.T) {
			ciphertext, nonce, err := handle.Encrypt(ctx, plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			_, err = archive.Open(ctx, handle, &archive.EncryptedRecord{Ciphertext: ciphertext, Nonce: nonce})
			if !errors.Is(err, archive.ErrCorruptArchive) {
				t.Errorf("Open error = %v, want ErrCorruptArchive", err)
			}
		})
	}
}

func TestOpenEmptyRecord(t *testing.T) {
	handle := initializedCustodian(t, 1)
	if _, err := archive.Open(context.Background(), handle, &archive.EncryptedRecord{}); !errors.Is(err, archive.ErrCorruptArchive) {
		t.Errorf("Open(empty) error = %v, want ErrCorruptArchive", err)
	}
}

func TestValidate(t *testing.T) {
	handle := initializedCustodian(t, 1)
	valid := generatedArchive(t, handle)
	key := valid.Keys[valid.ID]

	tests := []struct {
		name    string
		archive archive.KeyPairArchive
	}{
		{"missing id", archive.KeyPairArchive{Keys: map[string][]byte{valid.ID: key}}},
		{"no keys", archive.KeyPairArchive{ID: valid.ID}},
		{"id without key", archive.KeyPairArchive{ID: valid.ID, Keys: map[string][]byte{"did:key:zOther": key}}},
		{"bad did", archive.KeyPairArchive{ID: "did:web:example.com", Keys: map[string][]byte{"did:web:example.com": key}}},
		{"empty key", archive.KeyPairArchive{ID: valid.ID, Keys: map[string][]byte{valid.ID: {}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.archive.Validate(); !errors.Is(err, archive.ErrCorruptArchive) {
				t.Errorf("Validate error = %v, want ErrCorruptArchive", err)
			}
		})
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate(generated) = %v", err)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	handle := initializedCustodian(t, 1)
	a := generatedArchive(t, handle)
	first, err := archive.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := archive.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Marshal is not deterministic")
	}
}

func TestEscrowRecover(t *testing.T) {
	ctx := context.Background()
	handle := initializedCustodian(t, 1)
	original := generatedArchive(t, handle)
	wantKey := bytes.Clone(original.Keys[original.ID])
	record, err := archive.Seal(ctx, handle, original)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	operator, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer operator.Close()

	escrowed, err := archive.Escrow(ctx, handle, record, []string{operator.PublicKey})
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	recovered, err := archive.Recover(escrowed, operator.PrivateKey)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered.ID != original.ID {
		t.Errorf("recovered ID = %s, want %s", recovered.ID, original.ID)
	}
	if !bytes.Equal(recovered.Keys[recovered.ID], wantKey) {
		t.Error("recovered private key differs")
	}

	stranger, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer stranger.Close()
	if _, err := archive.Recover(escrowed, stranger.PrivateKey); err == nil {
		t.Error("Recover succeeded with an unrelated key")
	}
}

func TestEscrowRejectsBadRecipient(t *testing.T) {
	handle := initializedCustodian(t, 1)
	record, err := archive.Seal(context.Background(), handle, generatedArchive(t, handle))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := archive.Escrow(context.Background(), handle, record, []string{"not-a-recipient"}); err == nil {
		t.Error("Escrow accepted an invalid recipient")
	}
}
