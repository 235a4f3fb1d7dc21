// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the worklogd server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/worklogd/worklogd/cmd/worklogd/app"
	"github.com/worklogd/worklogd/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
