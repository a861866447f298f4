// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package ci provides helpers for tests running under continuous integration.
package ci

import (
	"os"
	"testing"
)

// Parallel marks the test as eligible to run in parallel with other tests.
func Parallel(t *testing.T) {
	t.Helper()
	t.Parallel()
}

// SkipSlow skips a slow test unless FOREMAN_SLOW_TEST is set.
func SkipSlow(t *testing.T, reason string) {
	t.Helper()
	if os.Getenv("FOREMAN_SLOW_TEST") == "" {
		t.Skipf("Skipping slow test: %s", reason)
	}
}
