// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package testlog creates hclog.Logger instances that write to the Go
// testing package's logger, so log output is associated with the test that
// produced it and hidden unless the test fails or -v is set.
package testlog

import (
	"io"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
)

// LogPrinter is the methods of testing.T (or testing.B) needed by the test
// logger.
type LogPrinter interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a LogPrinter.
type writer struct {
	prefix string
	t      LogPrinter
}

// Writer returns an io.Writer whose writes are sent to t.Logf.
func Writer(t LogPrinter) io.Writer {
	return &writer{"", t}
}

func (w *writer) Write(p []byte) (n int, err error) {
	w.t.Logf("%s%s", w.prefix, p)
	return len(p), nil
}

// HCLogger returns a new test logger with the Trace level enabled.
func HCLogger(t LogPrinter) hclog.InterceptLogger {
	level := hclog.Trace
	opts := &hclog.LoggerOptions{
		Level:           level,
		Output:          Writer(t),
		IncludeLocation: true,
	}
	return hclog.NewInterceptLogger(opts)
}

var _ LogPrinter = (*testing.T)(nil)
