// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package helper

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d   time.Duration
		exp string
	}{
		{0, "0s"},
		{500 * time.Millisecond, "0.5s"},
		{time.Second, "1s"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m"},
		{90 * time.Second, "1.5m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1.5h"},
		{2 * time.Hour, "2h"},
	}

	for _, tc := range testCases {
		t.Run(tc.exp, func(t *testing.T) {
			must.Eq(t, tc.exp, FormatDuration(tc.d))
		})
	}
}

func TestNewSafeTimer(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		timer, stop := NewSafeTimer(0)
		defer stop()

		<-timer.C
	})

	t.Run("positive", func(t *testing.T) {
		timer, stop := NewSafeTimer(time.Millisecond)
		defer stop()

		<-timer.C
	})
}
