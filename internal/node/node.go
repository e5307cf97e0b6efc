// Copyright 2025 Govex DAO
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package node runs the futarchy engine as a long-lived service: it builds
// the engine from the service config, serves Prometheus metrics, and handles
// signal-driven graceful shutdown.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/govex-dao/futarchy"
	"github.com/govex-dao/futarchy/internal/config"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	keeperInterval := time.Second
	if cfg.KeeperInterval != "" {
		var err error
		keeperInterval, err = time.ParseDuration(cfg.KeeperInterval)
		if err != nil {
			return fmt.Errorf("invalid keeper interval: %w", err)
		}
	}
	quotaWindow := 168 * time.Hour
	if cfg.SponsorQuotaWindow != "" {
		var err error
		quotaWindow, err = time.ParseDuration(cfg.SponsorQuotaWindow)
		if err != nil {
			return fmt.Errorf("invalid sponsor quota window: %w", err)
		}
	}
	daoConfigs, err := cfg.LoadDaoConfigs()
	if err != nil {
		return err
	}

	opts := []futarchy.ConfigOptionFunc{
		futarchy.WithLogger(logger),
		futarchy.WithDatabasePath(cfg.DatabasePath),
		futarchy.WithKeeperIdentity(cfg.KeeperIdentity),
		futarchy.WithKeeperInterval(keeperInterval),
		futarchy.WithKeeperDisabled(cfg.KeeperDisabled),
		futarchy.WithEarlyResolve(cfg.EarlyResolve),
		futarchy.WithSponsorQuota(cfg.SponsorQuota, quotaWindow),
		futarchy.WithShutdownTimeout(shutdownTimeout),
		// Enable metrics with default prometheus registry
		futarchy.WithPrometheusRegistry(prometheus.DefaultRegisterer),
	}
	for daoId, daoCfg := range daoConfigs {
		opts = append(opts, futarchy.WithDAOConfig(daoId, daoCfg))
	}
	engine, err := futarchy.New(futarchy.NewConfig(opts...))
	if err != nil {
		return err
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run engine in goroutine
	errChan := make(chan error, 1)
	go func() {
		err := engine.Run()
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	stopMetrics := func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		stopMetrics()
		if err := engine.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("engine stopped")
			stopMetrics()
			if err := engine.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("engine error", "error", err)
		signalCtxStop()
		if stopErr := engine.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		stopMetrics()
		return err
	}
}
