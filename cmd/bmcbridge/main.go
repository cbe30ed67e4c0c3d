// Shoal is a Redfish aggregator service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shoal/internal/bridge"
	"shoal/internal/config"
	"shoal/internal/logging"
	"shoal/internal/metrics"
)

// Exit codes per spec.md §6: 0 clean shutdown, 1 config invalid, 2 bind
// failure, 3 unexpected internal failure.
const (
	exitOK             = 0
	exitConfigInvalid  = 1
	exitBindFailed     = 2
	exitInternalFailed = 3
)

func main() {
	var (
		configPath  = flag.String("config", "bmcbridge.json", "Path to the bridge configuration file")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		metricsAddr = flag.String("metrics-addr", ":9090", "Address the Prometheus metrics endpoint listens on")
	)
	flag.Parse()

	logger := logging.New(*logLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(exitConfigInvalid)
	}

	br, err := bridge.New(cfg, logger)
	if err != nil {
		slog.Error("failed to initialize bridge", "error", err)
		os.Exit(exitInternalFailed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := &http.Server{
		Addr:         *metricsAddr,
		Handler:      metrics.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics listener started", "addr", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics listener failed", "error", err)
		}
	}()

	slog.Info("bridge starting", "vm_count", len(cfg.VMs))
	runErr := br.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if runErr != nil && ctx.Err() == nil {
		slog.Error("bridge exited with error", "error", runErr)
		if isBindError(runErr) {
			os.Exit(exitBindFailed)
		}
		os.Exit(exitInternalFailed)
	}

	slog.Info("bridge shut down cleanly")
	os.Exit(exitOK)
}

func isBindError(err error) bool {
	return strings.Contains(err.Error(), "bind failed")
}
