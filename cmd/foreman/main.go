// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command foreman runs a task configuration headless: it launches the
// orchestrator, prints the merged log stream to stdout, and translates
// SIGINT/SIGTERM into a graceful shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/foreman/config"
	"github.com/hashicorp/foreman/orchestrator"
	"github.com/hashicorp/foreman/runner"
)

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: foreman <config.toml>")
		return 2
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "foreman",
		Level:  hclog.Info,
		Output: os.Stderr,
	})

	file, err := config.Load(args[0])
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		return 1
	}

	orch, err := orchestrator.New(file, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		orch.Shutdown()
	}()

	go func() {
		for record := range orch.Events() {
			fmt.Println(record)
		}
	}()

	_ = orch.Run()

	fmt.Println()
	fmt.Println(orch.StatusTable())

	for _, rt := range orch.Runtimes() {
		if rt.State() == runner.StateFailed {
			return 1
		}
	}
	return 0
}
