package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/pcron/internal/catalog"
	"github.com/loykin/pcron/internal/config"
	"github.com/loykin/pcron/internal/engine"
	"github.com/loykin/pcron/internal/history"
	historyfactory "github.com/loykin/pcron/internal/history/factory"
	"github.com/loykin/pcron/internal/logger"
	"github.com/loykin/pcron/internal/metrics"
	storefactory "github.com/loykin/pcron/internal/store/factory"
	"github.com/loykin/pcron/internal/timesource"
)

func newRunCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pcron daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "configuration directory (crontab.ini, environment.sh, pcron.yaml)")
	return cmd
}

func runDaemon(ctx context.Context, dir string) error {
	layout, err := config.ResolveLayout(dir)
	if err != nil {
		return err
	}
	if err := layout.EnsureDir(); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}

	daemon, err := config.LoadDaemon(layout)
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}

	log := logger.NewEngineLogger(layout.LogFilePath, daemon.Log.Level, logger.Config{
		MaxSizeMB:  daemon.Log.MaxSizeMB,
		MaxBackups: daemon.Log.MaxBackups,
		MaxAgeDays: daemon.Log.MaxAgeDays,
		Compress:   daemon.Log.Compress,
	})

	cat, err := loadCatalog(layout)
	if err != nil {
		return fmt.Errorf("no valid catalog to start from: %w", err)
	}

	st, err := storefactory.NewFromDSN(daemon.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sinks, closeSinks, err := buildHistorySinks(daemon.History)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	defer closeSinks()

	eng, err := engine.New(layout, daemon, cat, st, sinks, timesource.Real{}, log)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile store: %w", err)
	}

	if daemon.Metrics.Listen != "" {
		stopMetrics, err := serveMetrics(daemon.Metrics.Listen, log)
		if err != nil {
			return fmt.Errorf("start metrics listener: %w", err)
		}
		defer stopMetrics()
	}

	if err := writePIDFile(layout.PIDFilePath, os.Getpid()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() { _ = removePIDFile(layout.PIDFilePath) }()

	log.Info("pcron starting", "dir", layout.Dir, "jobs", len(cat.Jobs))
	err = eng.Run(ctx)
	log.Info("pcron stopped", "err", err)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func loadCatalog(layout config.Layout) (*catalog.Catalog, error) {
	f, err := os.Open(layout.CrontabPath)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", layout.CrontabPath, err)
	}
	defer func() { _ = f.Close() }()
	cat, errs := catalog.Parse(f)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return nil, fmt.Errorf("%d catalog error(s)", len(errs))
	}
	return cat, nil
}

func buildHistorySinks(cfg config.HistoryConfig) ([]history.Sink, func(), error) {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil, func() {}, nil
	}
	sink, err := historyfactory.NewSinkFromDSN(cfg.DSN)
	if err != nil {
		return nil, func() {}, err
	}
	return []history.Sink{sink}, func() { _ = sink.Close() }, nil
}

func serveMetrics(addr string, log interface{ Error(string, ...any) }) (stop func(), err error) {
	if regErr := metrics.Register(prometheus.DefaultRegisterer); regErr != nil {
		return nil, regErr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if srvErr := srv.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error("metrics listener failed", "err", srvErr)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
