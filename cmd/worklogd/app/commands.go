// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the worklogd command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/worklogd/worklogd/pkg/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:               "worklogd",
	DisableAutoGenTag: true,
	Short:             "Team worklog server with an embedded OAuth2 authorization server",
	Long: `worklogd is a team time-tracking backend exposed over MCP (Model Context
Protocol). Clients register themselves dynamically, users log in through the
team's existing identity provider, and every tool call runs under the
authenticated user's identity.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the worklogd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("worklogd version: %s", version)
		},
	}
}
