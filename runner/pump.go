// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"fmt"
	"os"
	"strings"

	"github.com/armon/circbuf"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/foreman/logstream"
)

const (
	// pumpReadSize is the chunk size for PTY master reads.
	pumpReadSize = 1024

	// maxPartialLine bounds how much unterminated content the pump holds
	// onto; a pathological child that never emits a newline loses the
	// oldest bytes of the line rather than growing without bound.
	maxPartialLine = 64 * 1024
)

// recordSeparator sits between the task name prefix and the output line in
// every pumped record: U+2502 BOX DRAWINGS LIGHT VERTICAL.
const recordSeparator = "│"

// pump reads the child's merged output from the PTY master, splits it into
// lines, and forwards each line to the shared log stream and the task's
// tail buffer. It exits on EOF or read error, which is what both child
// exit and shutdown's master close produce.
type pump struct {
	name   string
	file   *os.File
	stream *logstream.Stream
	tail   *tailBuffer
	logger hclog.Logger

	// partial holds trailing content not yet terminated by a newline.
	partial *circbuf.Buffer

	// pendingCR is true when the previous chunk ended in a carriage
	// return, so a newline opening the next chunk is not a second
	// terminator.
	pendingCR bool

	doneCh chan struct{}
}

func newPump(name string, file *os.File, stream *logstream.Stream, tail *tailBuffer, logger hclog.Logger) *pump {
	partial, _ := circbuf.NewBuffer(maxPartialLine)
	return &pump{
		name:    name,
		file:    file,
		stream:  stream,
		tail:    tail,
		logger:  logger.Named("pump"),
		partial: partial,
		doneCh:  make(chan struct{}),
	}
}

// run blocks pumping until EOF and must be called from its own goroutine.
func (p *pump) run() {
	defer close(p.doneCh)

	buf := make([]byte, pumpReadSize)
	for {
		n, err := p.file.Read(buf)
		if n > 0 {
			p.consume(buf[:n])
		}
		if err != nil {
			// EOF, EIO after the slave side closed, or our master was
			// closed by shutdown. Flush whatever is buffered and stop.
			p.flush()
			p.logger.Trace("pump finished", "error", err)
			return
		}
	}
}

// waitCh is closed once the pump has drained and exited.
func (p *pump) waitCh() <-chan struct{} {
	return p.doneCh
}

// consume splits a chunk on line terminators (\n, \r, or the pair \r\n)
// and emits each completed line.
func (p *pump) consume(chunk []byte) {
	for _, b := range chunk {
		switch b {
		case '\r':
			p.emitLine()
			p.pendingCR = true
		case '\n':
			if p.pendingCR {
				p.pendingCR = false
				continue
			}
			p.emitLine()
		default:
			p.pendingCR = false
			_, _ = p.partial.Write([]byte{b})
		}
	}
}

// flush emits any trailing content that never saw a terminator.
func (p *pump) flush() {
	if p.partial.TotalWritten() > 0 {
		p.emitLine()
	}
}

func (p *pump) emitLine() {
	line := strings.ToValidUTF8(string(p.partial.Bytes()), "�")
	p.partial.Reset()

	p.tail.append(line)
	p.stream.Emit(fmt.Sprintf("[%s] %s %s", p.name, recordSeparator, line))
}
