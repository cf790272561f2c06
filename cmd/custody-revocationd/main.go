// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// custody-revocationd is a reference revocation authority. It accepts
// signed revocation invocations over HTTP, records them in SQLite, and
// answers status queries for delegation IDs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custody/cli"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/netutil"
	"github.com/bureau-foundation/custody/lib/revocation"
	"github.com/bureau-foundation/custody/lib/store"
	"github.com/bureau-foundation/custody/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		showVersion bool
		configPath  string
		listen      string
		storePath   string
	)
	flagSet := pflag.NewFlagSet("custody-revocationd", pflag.ContinueOnError)
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&listen, "listen", "", "HTTP listen address (overrides registry.listen)")
	flagSet.StringVar(&storePath, "store", "", "SQLite database (overrides registry.store)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("custody-revocationd %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Registry.Listen = listen
	}
	if storePath != "" {
		cfg.Registry.Store = storePath
	}

	level, err := cli.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level, cfg.Log.Format).With("service", "revocationd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := store.OpenSQLite(cfg.Registry.Store, logger)
	if err != nil {
		return fmt.Errorf("opening registry store: %w", err)
	}
	defer records.Close()

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry, err := revocation.NewRegistry(revocation.RegistryConfig{
		Store:      records,
		Identity:   cfg.Registry.Identity,
		Logger:     logger,
		Registerer: metrics,
	})
	if err != nil {
		return err
	}

	server, err := netutil.NewServer(netutil.ServerConfig{
		Address: cfg.Registry.Listen,
		Handler: newHandler(registry, metrics, cfg.Registry.Metrics, logger),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-server.Ready():
			logger.Info("revocation authority listening",
				"address", server.Addr().String(),
				"identity", cfg.Registry.Identity,
				"version", version.Info(),
			)
		case <-ctx.Done():
		}
	}()

	return server.Serve(ctx)
}

// loadConfig reads the config from path, or from CUSTODY_CONFIG when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Registry.Store == "" {
		return nil, fmt.Errorf("registry.store is required")
	}
	return cfg, nil
}

// newHandler serves the revocation routes, and /metrics from gatherer
// when metrics is set.
func newHandler(registry *revocation.Registry, gatherer prometheus.Gatherer, metrics bool, logger *slog.Logger) http.Handler {
	revocations := revocation.NewHandler(registry, logger)
	if !metrics {
		return revocations
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", revocations)
	return mux
}
