// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeeDigitalWorks/zapdav/pkg/debug"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zapdav",
	Short: "zapdav - file-style access to object stores",
	Long: `zapdav maps file-oriented operations (stat, list, ranged reads, uploads,
deletes and custom metadata updates) onto an S3-compatible, local or
in-memory object store.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupCommand,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	f.String("debug_addr", "", "Serve metrics and pprof on this address while the command runs (e.g. 127.0.0.1:8010)")
	f.String("log_level", "", "Log level (debug, info, warn, error). Overrides LOG_LEVEL")
}

// setupCommand loads configuration and attaches a per-invocation logger,
// tagged with a fresh operation id, to the command context.
func setupCommand(cmd *cobra.Command, args []string) error {
	utils.LoadConfiguration("zapdav", false)

	if raw, _ := cmd.Flags().GetString("log_level"); raw != "" {
		level, err := zerolog.ParseLevel(raw)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l := logger.With().Str("op_id", uuid.NewString()).Str("command", cmd.Name()).Logger()
	ctx = logger.WithLogger(ctx, &l)

	if addr, _ := cmd.Flags().GetString("debug_addr"); addr != "" {
		if _, _, err := debug.Serve(ctx, addr); err != nil {
			return err
		}
	}

	cmd.SetContext(ctx)
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
