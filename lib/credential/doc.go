// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential turns hardware credential ceremonies into seeds.
//
// A [Provider] wraps an [Authenticator] (WebAuthn in a browser or
// platform API, [SoftwareAuthenticator] in development). On
// registration it generates a random PRF input and asks the
// authenticator to evaluate the PRF extension over it. Later
// authentications pass the same stored input, so the authenticator
// reproduces the same output. That output is the [Seed] the custodian
// derives its protection key from.
//
// When the authenticator does not implement PRF, [ExtractSeed] falls
// back to the raw credential id. The fallback is deterministic but
// weaker: the credential id is not a secret. [Seed.Source] records
// which path produced a seed so callers can warn about the fallback.
//
// Only the PRF input and the source tag are persisted ([Info.Record]).
// The seed is never written anywhere. Every session that needs to
// decrypt the key archive runs a fresh ceremony.
package credential
