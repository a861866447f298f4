// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/foreman/config"
	"github.com/hashicorp/foreman/executor"
)

// TaskRuntime is the per-task mutable record. The task's own TaskRunner is
// the only writer; observers (the UI, dependents waiting on the latches)
// read through the accessors.
type TaskRuntime struct {
	task  *config.Task
	color string

	// ready is set exactly once, after the state has transitioned to
	// Ready. Dependents wait on it.
	ready *Latch

	// doomed is set when the task reaches Failed without ever having been
	// ready, releasing dependents so they can fail fast instead of waiting
	// on a signal that will never come.
	doomed *Latch

	tail *tailBuffer

	mu        sync.RWMutex
	state     State
	everReady bool
	handle    *executor.Handle
	startTime time.Time
	endTime   time.Time
}

// NewTaskRuntime builds the runtime record for a configured task.
func NewTaskRuntime(task *config.Task, color string) *TaskRuntime {
	return &TaskRuntime{
		task:   task,
		color:  color,
		ready:  NewLatch(),
		doomed: NewLatch(),
		tail:   newTailBuffer(task.MaxLines),
		state:  StatePending,
	}
}

// Task returns the immutable configuration.
func (rt *TaskRuntime) Task() *config.Task {
	return rt.task
}

// Color returns the display color assigned from the palette.
func (rt *TaskRuntime) Color() string {
	return rt.color
}

// State returns the current lifecycle state.
func (rt *TaskRuntime) State() State {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.state
}

// Ready is the latch dependents wait on. It fires only after the task has
// been Ready at least once.
func (rt *TaskRuntime) Ready() *Latch {
	return rt.ready
}

// Doomed fires if the task fails without ever having been ready.
func (rt *TaskRuntime) Doomed() *Latch {
	return rt.doomed
}

// StartTime is the moment the task entered Running; zero until then.
func (rt *TaskRuntime) StartTime() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.startTime
}

// EndTime is the moment the child exited; zero while it is alive.
func (rt *TaskRuntime) EndTime() time.Time {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.endTime
}

// Elapsed is the task's wall-clock running time so far, or its total
// running time once the child has exited.
func (rt *TaskRuntime) Elapsed() time.Duration {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	switch {
	case rt.startTime.IsZero():
		return 0
	case rt.endTime.IsZero():
		return time.Since(rt.startTime)
	default:
		return rt.endTime.Sub(rt.startTime)
	}
}

// MasterFd publishes the PTY master file descriptor, or -1 when no child
// is attached. External code may write to the fd to inject stdin.
func (rt *TaskRuntime) MasterFd() int {
	rt.mu.RLock()
	h := rt.handle
	rt.mu.RUnlock()
	if h == nil {
		return -1
	}
	return h.MasterFd()
}

// WriteStdin delivers p to the child as terminal input. It fails when the
// task has no live PTY.
func (rt *TaskRuntime) WriteStdin(p []byte) (int, error) {
	rt.mu.RLock()
	h := rt.handle
	rt.mu.RUnlock()
	if h == nil {
		return 0, fmt.Errorf("task %q has no attached process", rt.task.Name)
	}
	return h.WriteStdin(p)
}

// TailLines returns a copy of the retained output lines, oldest first.
func (rt *TaskRuntime) TailLines() []string {
	return rt.tail.Lines()
}

// Handle returns the process handle, or nil before spawn.
func (rt *TaskRuntime) Handle() *executor.Handle {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.handle
}

// setState applies a lifecycle transition, returning false if the
// transition is not part of the state machine. Latch bookkeeping rides on
// the transitions: Ready sets the ready latch, Failed without a prior
// Ready sets the doomed latch.
func (rt *TaskRuntime) setState(next State) bool {
	rt.mu.Lock()
	if !transitionAllowed(rt.state, next) {
		rt.mu.Unlock()
		return false
	}
	rt.state = next
	if next == StateReady {
		rt.everReady = true
	}
	everReady := rt.everReady
	rt.mu.Unlock()

	switch next {
	case StateReady:
		rt.ready.Set()
	case StateFailed:
		if !everReady {
			rt.doomed.Set()
		}
	}
	return true
}

// markRunning records Running entry and the monotonic start time.
func (rt *TaskRuntime) markRunning() {
	rt.mu.Lock()
	if transitionAllowed(rt.state, StateRunning) {
		rt.state = StateRunning
		rt.startTime = time.Now()
	}
	rt.mu.Unlock()
}

// attach publishes the spawned child's handle.
func (rt *TaskRuntime) attach(h *executor.Handle) {
	rt.mu.Lock()
	rt.handle = h
	rt.mu.Unlock()
}

// markEnded records the child's exit time.
func (rt *TaskRuntime) markEnded() {
	rt.mu.Lock()
	rt.endTime = time.Now()
	rt.mu.Unlock()
}
