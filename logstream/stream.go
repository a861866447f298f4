// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package logstream provides the shared queue that carries every
// human-readable record produced by the orchestrator: task status lines and
// pumped child output. Producers are the per-task supervisors and pumps;
// any number of observers may drain the channel.
package logstream

import (
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// DefaultBufSize is the queue capacity used when New is given a
// non-positive size.
const DefaultBufSize = 4096

// droppedWarnInterval limits how often the drop counter is reported to the
// orchestrator's own logger.
const droppedWarnInterval = 10 * time.Second

// Stream is a bounded multi-producer queue of log records. When the buffer
// is full the oldest record is dropped so that a noisy child can never
// block a supervisor; Dropped reports how many records were lost.
type Stream struct {
	logger hclog.Logger

	mu       sync.Mutex
	ch       chan string
	dropped  uint64
	lastWarn time.Time
}

// New creates a stream with the given buffer capacity.
func New(bufSize int, logger hclog.Logger) *Stream {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	return &Stream{
		logger: logger.Named("logstream"),
		ch:     make(chan string, bufSize),
	}
}

// C returns the channel observers drain. Records appear in enqueue order.
func (s *Stream) C() <-chan string {
	return s.ch
}

// Emit enqueues one record, evicting the oldest buffered record if the
// queue is full. It never blocks for unbounded time.
func (s *Stream) Emit(record string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- record:
			return
		default:
		}

		// Full: evict one and retry. The consumer may have raced us to the
		// oldest record, in which case the retry will succeed anyway.
		select {
		case <-s.ch:
			s.dropped++
			if now := time.Now(); now.Sub(s.lastWarn) > droppedWarnInterval {
				s.lastWarn = now
				s.logger.Warn("log queue full, dropping oldest records", "dropped", s.dropped)
			}
		default:
		}
	}
}

// Emitf formats and enqueues one record.
func (s *Stream) Emitf(format string, args ...interface{}) {
	s.Emit(fmt.Sprintf(format, args...))
}

// Dropped returns the number of records evicted so far.
func (s *Stream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
