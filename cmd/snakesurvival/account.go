// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Snake Survival Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/snakesurvival/snakesurvival/internal/auth"
)

// NewAccountCmd creates the account subcommand.
func NewAccountCmd() *cobra.Command {
	return newAccountCmd(&CommonDeps{})
}

func newAccountCmd(deps *CommonDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer player accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-status HANDLE STATUS",
		Short: "Set an account's status (active, suspended, deleted)",
		Long: `Set an account's status. Suspending or deleting an account also ends
all of its sessions.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps.applyDefaults()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
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

			svc, err := buildServices(cfg, db, logger)
			if err != nil {
				return err
			}
			if err := svc.auth.SetStatus(ctx, args[0], auth.Status(args[1])); err != nil {
				return err
			}
			cmd.Printf("Account %s is now %s\n", args[0], args[1])
			return nil
		},
	})

	return cmd
}
