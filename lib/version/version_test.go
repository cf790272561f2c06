// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func withBuildInfo(t *testing.T, settings ...debug.BuildSetting) {
	t.Helper()
	original := buildInfo
	t.Cleanup(func() { buildInfo = original })
	buildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func withInjected(t *testing.T, commit, dirty string) {
	t.Helper()
	originalCommit, originalDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = originalCommit, originalDirty })
	GitCommit, GitDirty = commit, dirty
}

func TestInjectedCommitWins(t *testing.T) {
	withInjected(t, "abc1234", "true")
	withBuildInfo(t, debug.BuildSetting{Key: "vcs.revision", Value: "ffffffffffffffff"})

	if got := Commit(); got != "abc1234" {
		t.Errorf("Commit() = %q, want abc1234", got)
	}
	if !strings.Contains(Info(), "abc1234-dirty") {
		t.Errorf("Info() = %q, want the dirty marker", Info())
	}
}

func TestBuildInfoFallback(t *testing.T) {
	withInjected(t, "unknown", "false")
	withBuildInfo(t,
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)

	if got := Commit(); got != "0123456789ab" {
		t.Errorf("Commit() = %q, want the revision shortened to 12 characters", got)
	}
	if !Dirty() {
		t.Error("Dirty() = false, want true from vcs.modified")
	}
}

func TestNoBuildInfo(t *testing.T) {
	withInjected(t, "unknown", "false")
	original := buildInfo
	t.Cleanup(func() { buildInfo = original })
	buildInfo = func() (*debug.BuildInfo, bool) { return nil, false }

	if got := Commit(); got != "unknown" {
		t.Errorf("Commit() = %q, want unknown", got)
	}
	if !strings.HasPrefix(Full(), Short()) {
		t.Errorf("Full() = %q does not start with the version", Full())
	}
}
