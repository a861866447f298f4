// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build linux

package executor

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr starts the child in a new session with the PTY slave (stdin,
// fd 0) as its controlling terminal. Pdeathsig asks the kernel to deliver
// SIGTERM to the child should the orchestrator itself die.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:    true,
		Setctty:   true,
		Ctty:      0,
		Pdeathsig: unix.SIGTERM,
	}
}
