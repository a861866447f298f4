// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package executor

import "syscall"

// sysProcAttr starts the child in a new session with the PTY slave (stdin,
// fd 0) as its controlling terminal. Parent-death signaling is Linux-only.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}
}
