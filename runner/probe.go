// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/foreman/executor"
	"github.com/hashicorp/foreman/helper"
)

// probeInterval is the pause between readiness attempts.
const probeInterval = 500 * time.Millisecond

// checkRunner runs one readiness attempt. It exists so prober tests can
// substitute scripted results for real child processes.
type checkRunner interface {
	Check(ctx context.Context, command, dir string) bool
}

// execCheckRunner is the real checkRunner, shelling out via the executor.
type execCheckRunner struct{}

func (execCheckRunner) Check(ctx context.Context, command, dir string) bool {
	return executor.RunCheck(ctx, command, dir)
}

// prober repeatedly runs a service task's readiness command until it
// succeeds or the context expires. Each attempt runs in the task's working
// directory with output discarded; any non-zero status counts as a failed
// attempt.
type prober struct {
	command  string
	dir      string
	interval time.Duration
	exec     checkRunner
	logger   hclog.Logger
}

func newProber(command, dir string, logger hclog.Logger) *prober {
	return &prober{
		command:  command,
		dir:      dir,
		interval: probeInterval,
		exec:     execCheckRunner{},
		logger:   logger.Named("prober"),
	}
}

// run returns nil once a probe succeeds, or the context's error when the
// deadline expires or the run is canceled.
func (p *prober) run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if p.exec.Check(ctx, p.command, p.dir) {
			p.logger.Debug("readiness probe succeeded", "attempt", attempt)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		timer, stop := helper.NewSafeTimer(p.interval)
		select {
		case <-ctx.Done():
			stop()
			return ctx.Err()
		case <-timer.C:
		}
		stop()
	}
}
