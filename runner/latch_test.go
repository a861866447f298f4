// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"testing"
	"time"

	"github.com/hashicorp/foreman/ci"
	"github.com/hashicorp/foreman/helper"
)

// requireChannelBlocking fails the test if the channel is ready.
func requireChannelBlocking(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("channel should be blocking: %s", msg)
	default:
	}
}

// requireChannelPassing fails the test unless the channel becomes ready.
func requireChannelPassing(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()

	timer, stop := helper.NewSafeTimer(time.Second)
	defer stop()

	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("channel should be passing: %s", msg)
	}
}

func TestLatch(t *testing.T) {
	ci.Parallel(t)

	testCases := []struct {
		name string
		test func(*testing.T, *Latch)
	}{
		{
			name: "starts blocked",
			test: func(t *testing.T, l *Latch) {
				requireChannelBlocking(t, l.WaitCh(), "wait")
			},
		},
		{
			name: "set",
			test: func(t *testing.T, l *Latch) {
				l.Set()
				requireChannelPassing(t, l.WaitCh(), "wait")
			},
		},
		{
			name: "set twice",
			test: func(t *testing.T, l *Latch) {
				l.Set()
				l.Set()
				requireChannelPassing(t, l.WaitCh(), "wait")
			},
		},
		{
			name: "stays set",
			test: func(t *testing.T, l *Latch) {
				l.Set()
				requireChannelPassing(t, l.WaitCh(), "first wait")
				requireChannelPassing(t, l.WaitCh(), "second wait")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLatch()
			tc.test(t, l)
		})
	}
}

func TestLatch_IsSet(t *testing.T) {
	ci.Parallel(t)

	l := NewLatch()
	if l.IsSet() {
		t.Fatal("new latch should not be set")
	}

	l.Set()
	if !l.IsSet() {
		t.Fatal("latch should be set")
	}
}

// TestLatch_ManyWaiters verifies the broadcast property: a single Set
// releases every waiter.
func TestLatch_ManyWaiters(t *testing.T) {
	ci.Parallel(t)

	l := NewLatch()

	released := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		go func() {
			<-l.WaitCh()
			released <- struct{}{}
		}()
	}

	l.Set()

	timer, stop := helper.NewSafeTimer(3 * time.Second)
	defer stop()
	for i := 0; i < 10; i++ {
		select {
		case <-released:
		case <-timer.C:
			t.Fatalf("timeout waiting for waiter %d", i)
		}
	}
}
