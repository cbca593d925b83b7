package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/pcron/internal/config"
	"github.com/loykin/pcron/internal/engine"
	"github.com/loykin/pcron/internal/logger"
	storefactory "github.com/loykin/pcron/internal/store/factory"
	"github.com/loykin/pcron/internal/timesource"
)

func newJobCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Run a single startup job (no schedule) once, without starting the daemon loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runOneJob(cmd.Context(), dir, args[0])
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "configuration directory")
	return cmd
}

func runOneJob(ctx context.Context, dir string, jobID string) (int, error) {
	layout, err := config.ResolveLayout(dir)
	if err != nil {
		return 1, err
	}
	if err := layout.EnsureDir(); err != nil {
		return 1, fmt.Errorf("ensure config dir: %w", err)
	}

	daemon, err := config.LoadDaemon(layout)
	if err != nil {
		return 1, fmt.Errorf("load daemon config: %w", err)
	}

	log := logger.NewEngineLogger(layout.LogFilePath, daemon.Log.Level, logger.Config{
		MaxSizeMB:  daemon.Log.MaxSizeMB,
		MaxBackups: daemon.Log.MaxBackups,
		MaxAgeDays: daemon.Log.MaxAgeDays,
		Compress:   daemon.Log.Compress,
	})

	cat, err := loadCatalog(layout)
	if err != nil {
		return 1, fmt.Errorf("no valid catalog: %w", err)
	}

	st, err := storefactory.NewFromDSN(daemon.StoreDSN)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sinks, closeSinks, err := buildHistorySinks(daemon.History)
	if err != nil {
		return 1, fmt.Errorf("open history sink: %w", err)
	}
	defer closeSinks()

	eng, err := engine.New(layout, daemon, cat, st, sinks, timesource.Real{}, log)
	if err != nil {
		return 1, fmt.Errorf("create engine: %w", err)
	}

	return eng.RunOneJob(ctx, jobID)
}
