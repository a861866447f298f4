// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hashicorp/foreman/ci"
	"github.com/hashicorp/foreman/config"
	"github.com/hashicorp/foreman/helper/testlog"
	"github.com/hashicorp/foreman/logstream"
)

type trHarness struct {
	stream *logstream.Stream
	rt     *TaskRuntime
	tr     *TaskRunner
}

func newHarness(t *testing.T, task *config.Task, deps []*TaskRuntime, shuttingDown func() bool) *trHarness {
	logger := testlog.HCLogger(t)
	stream := logstream.New(1024, logger)
	if task.Workdir == "" || task.Workdir == "/tmp" {
		task.Workdir = t.TempDir()
	}
	rt := NewTaskRuntime(task, "#1f77b4")
	tr := NewTaskRunner(rt, deps, stream, logger, context.Background(), shuttingDown)
	return &trHarness{stream: stream, rt: rt, tr: tr}
}

func (h *trHarness) records() []string {
	return drainStream(h.stream)
}

func hasRecord(records []string, want string) bool {
	for _, r := range records {
		if r == want {
			return true
		}
	}
	return false
}

func TestTaskRunner_OneshotSuccess(t *testing.T) {
	ci.Parallel(t)

	task := testTask("greet", config.KindOneshot)
	task.Cmd = "echo hello"
	h := newHarness(t, task, nil, nil)

	h.tr.Run()

	must.Eq(t, StateReady, h.rt.State())
	must.True(t, h.rt.Ready().IsSet())
	must.False(t, h.rt.Doomed().IsSet())
	must.True(t, h.rt.EndTime().After(h.rt.StartTime()))

	records := h.records()
	must.True(t, hasRecord(records, "[greet] started"))
	must.True(t, hasRecord(records, "[greet] │ hello"))
	must.SliceContains(t, h.rt.TailLines(), "hello")

	// Started precedes output.
	must.Eq(t, "[greet] started", records[0])
}

func TestTaskRunner_OneshotFailure(t *testing.T) {
	ci.Parallel(t)

	task := testTask("bad", config.KindOneshot)
	task.Cmd = "exit 3"
	h := newHarness(t, task, nil, nil)

	h.tr.Run()

	must.Eq(t, StateFailed, h.rt.State())
	must.False(t, h.rt.Ready().IsSet())
	must.True(t, h.rt.Doomed().IsSet())
	must.True(t, h.rt.EndTime().After(h.rt.StartTime()))
	must.True(t, hasRecord(h.records(), "[bad] exited 3"))
}

func TestTaskRunner_SpawnError(t *testing.T) {
	ci.Parallel(t)

	task := testTask("lost", config.KindOneshot)
	task.Cmd = "true"
	task.Workdir = "/this/path/does/not/exist"
	h := newHarness(t, task, nil, nil)

	h.tr.Run()

	must.Eq(t, StateFailed, h.rt.State())
	must.True(t, h.rt.Doomed().IsSet())
	must.Nil(t, h.rt.Handle())

	var found bool
	for _, r := range h.records() {
		if strings.HasPrefix(r, "[lost] spawn failed:") {
			found = true
		}
	}
	must.True(t, found)
}

func TestTaskRunner_BlockedByFailedDependency(t *testing.T) {
	ci.Parallel(t)

	dep := NewTaskRuntime(testTask("db", config.KindOneshot), "")
	dep.setState(StateRunning)
	dep.setState(StateFailed)

	task := testTask("api", config.KindOneshot)
	task.Cmd = "echo never"
	h := newHarness(t, task, []*TaskRuntime{dep}, nil)

	h.tr.Run()

	must.Eq(t, StateFailed, h.rt.State())
	must.True(t, h.rt.Doomed().IsSet())
	must.True(t, h.rt.StartTime().IsZero())
	must.True(t, hasRecord(h.records(), "[api] blocked by db"))
}

func TestTaskRunner_ReleasedByReadyDependency(t *testing.T) {
	ci.Parallel(t)

	dep := NewTaskRuntime(testTask("db", config.KindDaemon), "")
	dep.setState(StateRunning)
	dep.setState(StateReady)

	task := testTask("api", config.KindOneshot)
	task.Cmd = "echo ok"
	h := newHarness(t, task, []*TaskRuntime{dep}, nil)

	h.tr.Run()

	must.Eq(t, StateReady, h.rt.State())
}

func TestTaskRunner_ShutdownWhilePending(t *testing.T) {
	ci.Parallel(t)

	dep := NewTaskRuntime(testTask("db", config.KindService), "")

	task := testTask("api", config.KindOneshot)
	logger := testlog.HCLogger(t)
	stream := logstream.New(64, logger)
	rt := NewTaskRuntime(task, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := NewTaskRunner(rt, []*TaskRuntime{dep}, stream, logger, ctx, nil)

	done := make(chan struct{})
	go func() {
		tr.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not return after shutdown")
	}
	must.Eq(t, StatePending, rt.State())
}

func TestTaskRunner_DaemonReadyOnSpawn(t *testing.T) {
	ci.Parallel(t)

	task := testTask("watcher", config.KindDaemon)
	task.Cmd = "sleep 30"
	h := newHarness(t, task, nil, func() bool { return true })

	done := make(chan struct{})
	go func() {
		h.tr.Run()
		close(done)
	}()

	requireChannelPassing(t, h.rt.Ready().WaitCh(), "daemon ready latch")
	must.Eq(t, StateReady, h.rt.State())

	// Shutdown-style kill: the daemon keeps its Ready state because the
	// death is shutdown-induced.
	require.NoError(t, h.rt.Handle().SignalGroup(unix.SIGTERM))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return after kill")
	}
	must.Eq(t, StateReady, h.rt.State())
	must.False(t, h.rt.EndTime().IsZero())
}

func TestTaskRunner_LonglivedFailureAfterReady(t *testing.T) {
	ci.Parallel(t)

	task := testTask("web", config.KindService)
	task.Cmd = "exit 7"
	h := newHarness(t, task, nil, nil)

	h.tr.Run()

	// Ready on spawn (no probe), then the non-zero exit fails the task.
	must.Eq(t, StateFailed, h.rt.State())
	must.True(t, h.rt.Ready().IsSet())
	must.False(t, h.rt.Doomed().IsSet())
	must.True(t, hasRecord(h.records(), "[web] exited 7"))
}

func TestTaskRunner_ServiceProbeSuccess(t *testing.T) {
	ci.Parallel(t)

	td := t.TempDir()
	task := testTask("web", config.KindService)
	task.Cmd = "sleep 1"
	task.ReadyCmd = "true"
	task.ReadyTimeout = 5 * time.Second
	task.Workdir = td
	h := newHarness(t, task, nil, nil)

	done := make(chan struct{})
	go func() {
		h.tr.Run()
		close(done)
	}()

	requireChannelPassing(t, h.rt.Ready().WaitCh(), "service ready latch")
	must.Eq(t, StateReady, h.rt.State())

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not return after child exit")
	}

	// Clean exit leaves the state as-is.
	must.Eq(t, StateReady, h.rt.State())
	must.True(t, hasRecord(h.records(), "[web] ready"))
}

func TestTaskRunner_ReadyTimeout(t *testing.T) {
	ci.Parallel(t)

	task := testTask("web", config.KindService)
	task.Cmd = "sleep 1"
	task.ReadyCmd = "false"
	task.ReadyTimeout = 200 * time.Millisecond
	h := newHarness(t, task, nil, nil)

	h.tr.Run()

	must.Eq(t, StateFailed, h.rt.State())
	must.False(t, h.rt.Ready().IsSet())
	must.True(t, h.rt.Doomed().IsSet())
	must.True(t, hasRecord(h.records(), "[web] READY TIMEOUT"))
}

// TestTaskRunner_StdinInjection drives a child that echoes back what it
// reads from its terminal.
func TestTaskRunner_StdinInjection(t *testing.T) {
	ci.Parallel(t)

	task := testTask("repl", config.KindDaemon)
	task.Cmd = "read line; echo got:$line"
	h := newHarness(t, task, nil, nil)

	done := make(chan struct{})
	go func() {
		h.tr.Run()
		close(done)
	}()

	requireChannelPassing(t, h.rt.Ready().WaitCh(), "daemon ready latch")

	_, err := h.rt.WriteStdin([]byte("ping\n"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not return after child exit")
	}

	must.True(t, hasRecord(h.records(), "[repl] │ got:ping"))
}
