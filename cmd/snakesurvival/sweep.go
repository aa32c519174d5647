// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return newSweepCmd(&CommonDeps{})
}

func newSweepCmd(deps *CommonDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and revocation entries once",
		Long: `Run a single expiry sweep. The server sweeps periodically on its own;
this command is for deployments that prefer an external scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps.applyDefaults()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}
			logger, err := setupLogging(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := connectDatabase(ctx, cfg, deps, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := newSweeper(cfg, db, logger).RunOnce(ctx); err != nil {
				return err
			}
			cmd.Println("Sweep completed")
			return nil
		},
	}
}
