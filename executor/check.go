// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// RunCheck executes a readiness command once and reports whether it exited
// zero. Output is discarded. The check runs in its own process group so
// canceling the context can take the whole check tree down without
// touching the task it probes.
func RunCheck(ctx context.Context, command, dir string) bool {
	cmd := exec.CommandContext(ctx, shellPath, "-c", command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if err == unix.ESRCH {
			return nil
		}
		return err
	}
	cmd.WaitDelay = time.Second

	return cmd.Run() == nil
}
