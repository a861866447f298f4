// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package runner implements the per-task lifecycle: wait for dependencies,
// spawn the child on a PTY, pump its output, determine readiness, and
// finalize state on exit.
package runner

import (
	"context"
	"errors"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/foreman/config"
	"github.com/hashicorp/foreman/executor"
	"github.com/hashicorp/foreman/logstream"
)

// TaskRunner supervises a single task from Pending to its terminal state.
// Exactly one TaskRunner exists per task, and it is the sole writer of the
// task's runtime record.
type TaskRunner struct {
	rt     *TaskRuntime
	deps   []*TaskRuntime
	stream *logstream.Stream
	logger hclog.Logger

	// shutdownCtx is canceled when the orchestrator shuts down; it bounds
	// dependency waits and readiness probes.
	shutdownCtx context.Context

	// shuttingDown distinguishes shutdown-induced child deaths from
	// genuine failures when finalizing long-lived tasks.
	shuttingDown func() bool
}

// NewTaskRunner wires a supervisor to its runtime record and the runtime
// records of its dependencies.
func NewTaskRunner(rt *TaskRuntime, deps []*TaskRuntime, stream *logstream.Stream, logger hclog.Logger, shutdownCtx context.Context, shuttingDown func() bool) *TaskRunner {
	return &TaskRunner{
		rt:          rt,
		deps:        deps,
		stream:      stream,
		logger:      logger.Named("task_runner").With("task", rt.Task().Name),
		shutdownCtx: shutdownCtx,
		shuttingDown: func() bool {
			if shuttingDown == nil {
				return false
			}
			return shuttingDown()
		},
	}
}

// Runtime returns the runtime record this runner writes.
func (tr *TaskRunner) Runtime() *TaskRuntime {
	return tr.rt
}

// Run drives the task's full lifecycle and returns when the task has
// reached a terminal condition. It never returns an error: every failure
// is recorded as a state transition plus a log record.
func (tr *TaskRunner) Run() {
	task := tr.rt.Task()

	if !tr.waitForDeps() {
		return
	}

	tr.rt.markRunning()
	tr.stream.Emitf("[%s] started", task.Name)
	tr.logger.Info("task started", "kind", task.Kind, "cmd", task.Cmd)

	handle, err := executor.Launch(&executor.Command{
		Cmd: task.Cmd,
		Dir: task.Workdir,
	})
	if err != nil {
		tr.rt.setState(StateFailed)
		tr.stream.Emitf("[%s] spawn failed: %v", task.Name, err)
		tr.logger.Error("failed to spawn task", "error", err)
		return
	}
	tr.rt.attach(handle)

	p := newPump(task.Name, handle.PTY(), tr.stream, tr.rt.tail, tr.logger)
	go p.run()

	tr.determineReadiness()

	code := handle.Wait()
	tr.rt.markEnded()

	// Let the pump drain what the child wrote before it exited so the
	// task's records stay a faithful prefix of its output.
	<-p.waitCh()

	tr.finalize(code)

	// The run is over; release the master. Shutdown handles any master
	// still retained by a live task.
	handle.ClosePTY()
}

// waitForDeps blocks until every dependency is ready. If a dependency
// fails before ever becoming ready the task is failed with a "blocked by"
// record; a false return means the lifecycle is over.
func (tr *TaskRunner) waitForDeps() bool {
	for _, dep := range tr.deps {
		select {
		case <-dep.Ready().WaitCh():
		case <-dep.Doomed().WaitCh():
			tr.rt.setState(StateFailed)
			tr.stream.Emitf("[%s] blocked by %s", tr.rt.Task().Name, dep.Task().Name)
			tr.logger.Error("dependency failed before becoming ready", "dependency", dep.Task().Name)
			return false
		case <-tr.shutdownCtx.Done():
			return false
		}
	}
	return true
}

// determineReadiness applies the per-kind readiness rule after spawn.
func (tr *TaskRunner) determineReadiness() {
	task := tr.rt.Task()

	switch {
	case task.Kind == config.KindService && task.ReadyCmd != "":
		ctx, cancel := context.WithTimeout(tr.shutdownCtx, task.ReadyTimeout)
		err := newProber(task.ReadyCmd, task.Workdir, tr.logger).run(ctx)
		cancel()

		switch {
		case err == nil:
			if tr.rt.setState(StateReady) {
				tr.stream.Emitf("[%s] ready", task.Name)
				tr.logger.Info("task ready")
			}
		case errors.Is(err, context.DeadlineExceeded) && tr.shutdownCtx.Err() == nil:
			tr.rt.setState(StateFailed)
			tr.stream.Emitf("[%s] READY TIMEOUT", task.Name)
			tr.logger.Error("readiness probe timed out", "timeout", task.ReadyTimeout)
		default:
			// Shutdown canceled the probe; the child's exit finalizes.
		}

	case task.Kind.Longlived():
		tr.rt.setState(StateReady)
		tr.logger.Debug("task ready on spawn")
	}
}

// finalize applies the exit-code rule for the task's kind.
func (tr *TaskRunner) finalize(code int) {
	task := tr.rt.Task()

	if task.Kind == config.KindOneshot {
		if code == 0 {
			tr.rt.setState(StateReady)
			tr.logger.Info("task finished")
		} else {
			tr.rt.setState(StateFailed)
			tr.stream.Emitf("[%s] exited %d", task.Name, code)
			tr.logger.Error("task failed", "exit_code", code)
		}
		return
	}

	// Long-lived: a non-zero exit fails the task even if it was already
	// ready, unless the death was shutdown-induced.
	if code != 0 && !tr.shuttingDown() {
		tr.rt.setState(StateFailed)
		tr.stream.Emitf("[%s] exited %d", task.Name, code)
		tr.logger.Error("task exited", "exit_code", code)
	} else {
		tr.logger.Info("task exited", "exit_code", code)
	}
}
