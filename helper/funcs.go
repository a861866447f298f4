// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package helper contains small utility functions shared across packages.
package helper

import (
	"fmt"
	"math"
	"time"
)

// StopFunc is used to stop a time.Timer created with NewSafeTimer.
type StopFunc func()

// NewSafeTimer creates a time.Timer along with a function to stop it.
//
// Callers should always defer the StopFunc. A non-positive duration is
// clamped to a minimal value so the timer can never be created in a state
// where it fires immediately and forever.
func NewSafeTimer(duration time.Duration) (*time.Timer, StopFunc) {
	if duration <= 0 {
		duration = 1 * time.Nanosecond
	}

	t := time.NewTimer(duration)
	cancel := func() {
		t.Stop()
	}

	return t, cancel
}

// FormatDuration renders d in the largest sensible unit of hours, minutes,
// or seconds, with one decimal unless the value is close to a whole number.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()

	var v float64
	var unit string
	switch {
	case seconds >= 3600:
		v = seconds / 3600
		unit = "h"
	case seconds >= 60:
		v = seconds / 60
		unit = "m"
	default:
		v = seconds
		unit = "s"
	}

	if r := math.Round(v); v-r < 0.05 && v-r > -0.05 {
		return fmt.Sprintf("%d%s", int(r), unit)
	}
	return fmt.Sprintf("%.1f%s", v, unit)
}
