// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/snakesurvival/snakesurvival/internal/config"
	"github.com/snakesurvival/snakesurvival/internal/logging"
	"github.com/snakesurvival/snakesurvival/internal/xdg"
)

// NewRootCmd creates the root command for the snakesurvival CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snakesurvival",
		Short: "Snake Survival - account and session backend",
		Long: `Snake Survival serves player registration, login, token refresh
and leaderboard submission for the browser snake game.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default $XDG_CONFIG_HOME/snakesurvival/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewAccountCmd())

	return cmd
}

// loadConfig reads the configuration for cmd. Without --config, the XDG
// config file is used when present.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	if path == "" {
		if path, err = xdg.DefaultConfigFile(); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the configured logger as the slog default.
func setupLogging(cfg config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "snakesurvival",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
}
