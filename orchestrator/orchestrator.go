// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package orchestrator owns the full set of task runtimes, launches one
// supervisor per task, and exposes the shared log stream and state
// snapshots to observers.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/hashicorp/foreman/config"
	"github.com/hashicorp/foreman/helper"
	"github.com/hashicorp/foreman/logstream"
	"github.com/hashicorp/foreman/planner"
	"github.com/hashicorp/foreman/runner"
)

// palette is the ten-entry display color cycle (matplotlib's tab10),
// assigned to tasks in declaration order.
var palette = [...]string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// shutdownGrace is how long shutdown waits after SIGTERM before escalating
// to SIGKILL.
const shutdownGrace = 500 * time.Millisecond

// Orchestrator runs a validated configuration to completion. Construct
// with New, start with Run, stop early with Shutdown.
type Orchestrator struct {
	logger hclog.Logger
	stream *logstream.Stream

	runtimes map[string]*runner.TaskRuntime
	order    []string
	runners  []*runner.TaskRunner

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	shutdownOnce   sync.Once
	shuttingDown   atomic.Bool
}

// New validates the configuration (including acyclicity) and builds one
// runtime record and one supervisor per task. A configuration error means
// no orchestrator is constructed.
func New(file *config.File, logger hclog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("orchestrator")

	if err := file.Validate(); err != nil {
		return nil, err
	}
	order, err := planner.Order(file)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:         logger,
		stream:         logstream.New(logstream.DefaultBufSize, logger),
		runtimes:       make(map[string]*runner.TaskRuntime, len(file.Tasks)),
		order:          order,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}

	for i, task := range file.Tasks {
		o.runtimes[task.Name] = runner.NewTaskRuntime(task, palette[i%len(palette)])
	}

	// Supervisors are created in planner order; at runtime release is
	// driven by the dependency latches, so independent chains overlap.
	for _, name := range order {
		rt := o.runtimes[name]
		deps := make([]*runner.TaskRuntime, 0, len(rt.Task().DependsOn))
		for _, dep := range rt.Task().DependsOn {
			deps = append(deps, o.runtimes[dep])
		}
		o.runners = append(o.runners, runner.NewTaskRunner(
			rt, deps, o.stream, logger, ctx, o.shuttingDown.Load))
	}

	return o, nil
}

// Run launches every supervisor and blocks until all of them finish. It
// always returns nil: task failures are reflected in task states and the
// log stream, never raised across this boundary.
func (o *Orchestrator) Run() error {
	o.logger.Info("starting tasks", "count", len(o.runners))

	var wg sync.WaitGroup
	for _, tr := range o.runners {
		wg.Add(1)
		go func(tr *runner.TaskRunner) {
			defer wg.Done()
			tr.Run()
		}(tr)
	}
	wg.Wait()

	o.logger.Info("all tasks finished", "dropped_log_records", o.stream.Dropped())
	return nil
}

// Events returns the shared log stream channel. Drain it for the
// chronological activity record.
func (o *Orchestrator) Events() <-chan string {
	return o.stream.C()
}

// DroppedEvents reports how many log records were evicted under
// backpressure.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.stream.Dropped()
}

// Runtime returns the runtime record for one task, or nil.
func (o *Orchestrator) Runtime(name string) *runner.TaskRuntime {
	return o.runtimes[name]
}

// Runtimes returns a snapshot of the runtime map. The records themselves
// are shared; observers must treat them as read-only.
func (o *Orchestrator) Runtimes() map[string]*runner.TaskRuntime {
	out := make(map[string]*runner.TaskRuntime, len(o.runtimes))
	for name, rt := range o.runtimes {
		out[name] = rt
	}
	return out
}

// Order returns the planner's task ordering.
func (o *Orchestrator) Order() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// WriteStdin injects p as terminal input to a task's child.
func (o *Orchestrator) WriteStdin(name string, p []byte) error {
	rt := o.runtimes[name]
	if rt == nil {
		return fmt.Errorf("unknown task %q", name)
	}
	_, err := rt.WriteStdin(p)
	return err
}

// IsShuttingDown reports whether Shutdown has been requested.
func (o *Orchestrator) IsShuttingDown() bool {
	return o.shuttingDown.Load()
}

// Shutdown terminates all live task groups (SIGTERM, a short grace period,
// then SIGKILL), cancels pending dependency waits and probes, and releases
// every retained PTY master. It is idempotent and safe to call from a
// signal-handling context. Errors along the way are collected and logged,
// never raised.
func (o *Orchestrator) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.shuttingDown.Store(true)
		o.logger.Info("shutdown requested")

		var mErr *multierror.Error

		for _, name := range o.order {
			if h := o.runtimes[name].Handle(); h != nil && h.GroupAlive() {
				if err := h.SignalGroup(unix.SIGTERM); err != nil {
					mErr = multierror.Append(mErr, fmt.Errorf("terminate %s: %w", name, err))
				}
			}
		}

		o.waitGrace()

		for _, name := range o.order {
			if h := o.runtimes[name].Handle(); h != nil && h.GroupAlive() {
				if err := h.SignalGroup(unix.SIGKILL); err != nil {
					mErr = multierror.Append(mErr, fmt.Errorf("kill %s: %w", name, err))
				}
			}
		}

		// Cancel probers and dependency waits, then release the masters,
		// which also stops any pump still blocked in a read.
		o.shutdownCancel()
		for _, rt := range o.runtimes {
			if h := rt.Handle(); h != nil {
				h.ClosePTY()
			}
		}

		if err := mErr.ErrorOrNil(); err != nil {
			o.logger.Warn("errors during shutdown", "error", err)
		}
	})
}

// waitGrace sleeps out the TERM-to-KILL grace period, returning early once
// no task group remains alive.
func (o *Orchestrator) waitGrace() {
	deadline := time.Now().Add(shutdownGrace)
	for time.Now().Before(deadline) {
		alive := false
		for _, rt := range o.runtimes {
			if h := rt.Handle(); h != nil && h.GroupAlive() {
				alive = true
				break
			}
		}
		if !alive {
			return
		}
		timer, stop := helper.NewSafeTimer(50 * time.Millisecond)
		<-timer.C
		stop()
	}
}
