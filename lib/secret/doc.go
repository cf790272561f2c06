// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material in memory the garbage collector
// never sees.
//
// [Buffer] allocates an anonymous mmap region, locks it into physical
// RAM (mlock), and excludes it from core dumps (MADV_DONTDUMP). Close
// zeroes the region before unmapping it. The custodian keeps the
// protection key and the signing private key in Buffers so that Lock
// leaves no copy behind.
//
// [NewFromBytes] zeroes its source, and [Zero] is for the short-lived
// heap copies (seeds, decrypted archives) that must exist briefly
// before being handed to a Buffer.
//
// Depends on golang.org/x/sys/unix. No custody-internal dependencies.
package secret
