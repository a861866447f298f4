// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package executor spawns task commands as PTY-backed shell processes and
// owns the process-group discipline that makes teardown correct: every
// child is started as a session leader, so signaling its (negative) pid
// reaches the whole tree a shell command like `a && b &` can fan out into.
package executor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// shellPath is the interpreter every task and readiness command runs under.
const shellPath = "/bin/bash"

// Command describes a process to launch.
type Command struct {
	// Cmd is the shell command string, run with `bash -c`.
	Cmd string

	// Dir is the working directory. Must be absolute.
	Dir string

	// Env overrides the environment; nil inherits the orchestrator's.
	Env []string
}

// Handle represents a launched child and the retained PTY master.
type Handle struct {
	cmd *exec.Cmd
	pid int

	mu   sync.Mutex
	ptmx *os.File
}

// Launch allocates a PTY pair and starts the command with the slave as its
// stdin, stdout, and stderr, in a new session so the child owns the slave
// as its controlling terminal. The slave is closed in the parent once the
// child holds it.
func Launch(command *Command) (*Handle, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pty: %w", err)
	}

	cmd := exec.Command(shellPath, "-c", command.Cmd)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	_ = tty.Close()

	return &Handle{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		ptmx: ptmx,
	}, nil
}

// Pid returns the child's pid, which is also its process group id.
func (h *Handle) Pid() int {
	return h.pid
}

// PTY returns the retained master side of the PTY, or nil after ClosePTY.
// Reads on the returned file observe the child's merged output; writes are
// delivered to the child as terminal input.
func (h *Handle) PTY() *os.File {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ptmx
}

// MasterFd returns the master's file descriptor, or -1 after ClosePTY.
func (h *Handle) MasterFd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptmx == nil {
		return -1
	}
	return int(h.ptmx.Fd())
}

// WriteStdin delivers p to the child as terminal input.
func (h *Handle) WriteStdin(p []byte) (int, error) {
	h.mu.Lock()
	ptmx := h.ptmx
	h.mu.Unlock()
	if ptmx == nil {
		return 0, fmt.Errorf("pty closed")
	}
	return ptmx.Write(p)
}

// Wait blocks until the child exits and returns its exit code. A child
// killed by a signal reports 128+signal, matching shell conventions.
func (h *Handle) Wait() int {
	_ = h.cmd.Wait()
	state := h.cmd.ProcessState
	if state == nil {
		// Wait failed before the process was reaped.
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// SignalGroup sends sig to the child's process group. A group that has
// already been reaped is not an error.
func (h *Handle) SignalGroup(sig unix.Signal) error {
	err := unix.Kill(-h.pid, sig)
	if err == unix.ESRCH {
		return nil
	}
	return err
}

// GroupAlive reports whether any process remains in the child's group.
func (h *Handle) GroupAlive() bool {
	return unix.Kill(-h.pid, 0) == nil
}

// ClosePTY releases the retained master. Safe to call more than once;
// in-flight reads on the master are unblocked with an error, which is how
// the output pump learns to stop at shutdown.
func (h *Handle) ClosePTY() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ptmx != nil {
		_ = h.ptmx.Close()
		h.ptmx = nil
	}
}
