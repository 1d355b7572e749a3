// SPDX-License-Identifier: MIT

// epgsync mirrors an XMLTV guide: it downloads the feed from the first
// reachable mirror, repairs truncation, writes XML, gzip, JSON and checksum
// files when the content changed, and commits them to git.
//
// Usage:
//
//	epgsync [-config epgsync.yaml] [-once]
//	epgsync validate -f epgsync.yaml
//
// Exit codes:
//   - 0: synced or unchanged
//   - 1: runtime failure (mirrors down, unusable feed, write or git error)
//   - 2: usage or configuration error
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/epgsync/internal/config"
	"github.com/ManuGH/epgsync/internal/history"
	"github.com/ManuGH/epgsync/internal/jobs"
	xglog "github.com/ManuGH/epgsync/internal/log"
	"github.com/ManuGH/epgsync/internal/metrics"
	"github.com/ManuGH/epgsync/internal/server"
	"github.com/ManuGH/epgsync/internal/telemetry"
	"github.com/ManuGH/epgsync/internal/version"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "validate" {
		return runValidate(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("epgsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	once := fs.Bool("once", false, "run a single sync even when an interval is configured")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Service: "epgsync", Version: version.Version, Output: stderr})
	logger := xglog.WithComponent("main")

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
		return exitUsage
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService, Version: cfg.Version, Output: stderr})
	logger = xglog.WithComponent("main")
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("config_path", *configPath).
		Int("mirrors", len(cfg.Sources.All())).
		Str("output_dir", cfg.Output.Dir).
		Bool("publish", cfg.Publish.Enabled).
		Msg("configuration loaded")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "telemetry.init_failed").Msg("failed to start tracing")
		return exitFailure
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	var (
		recorder jobs.Recorder
		runs     server.HistorySource
	)
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "history.open_failed").
				Str(xglog.FieldPath, cfg.History.Path).
				Msg("failed to open run history")
			return exitFailure
		}
		defer func() { _ = store.Close() }()
		recorder, runs = store, store
	}

	deps := jobs.NewDeps(cfg, recorder)
	afterRun := func(*jobs.Status, error) { writeTextfile(cfg.Metrics.Textfile) }

	if cfg.Interval <= 0 || *once {
		st, err := jobs.Sync(ctx, deps)
		afterRun(st, err)
		if err != nil {
			return exitFailure
		}
		return exitOK
	}

	sched := jobs.NewScheduler(cfg.Interval, func(ctx context.Context) (*jobs.Status, error) {
		return jobs.Sync(ctx, deps)
	}, afterRun)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(gctx) })
	if cfg.Metrics.Listen != "" {
		srv := server.New(server.Config{Listen: cfg.Metrics.Listen, Paths: cfg.Output.Paths()}, sched, runs)
		g.Go(func() error { return srv.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("epgsync stopped with error")
		return exitFailure
	}
	return exitOK
}

func writeTextfile(path string) {
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		logger := xglog.WithComponent("metrics")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "metrics.textfile_failed").
			Str(xglog.FieldPath, path).
			Msg("failed to write metrics textfile")
	}
}
