// Copyright 2025 KrakLabs
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
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pflag "github.com/spf13/pflag"

	"github.com/paxoscn/code-impact-analyzer/internal/errors"
	"github.com/paxoscn/code-impact-analyzer/internal/ui"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runServe executes the 'serve' CLI command, which exposes the serve
// process's own default Prometheus registry at a long-lived /metrics
// endpoint, running until interrupted (§5 "metrics are a fire-and-forget
// concern alongside the batch analyze CLI"). Each `analyze` run is a
// separate process; the metrics it records are not served here.
func runServe(args []string) {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	addr := fs.StringP("metrics-addr", "a", ":9091", "HTTP listen address for Prometheus metrics")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Grace period for in-flight scrapes during shutdown")
	jsonOutput := fs.Bool("json", false, "Emit machine-readable JSON instead of colored output")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: impactctl serve [options]

Description:
  Runs a long-lived HTTP server exposing this process's Prometheus metrics
  at /metrics until interrupted (SIGINT/SIGTERM). Metrics recorded by
  separate "analyze" runs are not included.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  impactctl serve
  impactctl serve --metrics-addr :9100
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ui.InitColors(false)
	ui.Header("Starting impactctl metrics server")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *addr, Handler: mux}

	serveErrCh := make(chan error, 1)
	go func() {
		ui.Infof("Listening on %s (path /metrics)", *addr)
		serveErrCh <- srv.ListenAndServe()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		ui.Infof("Received %s, shutting down", sig.String())
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			errors.FatalError(errors.NewInternalError(
				"metrics server failed",
				err.Error(),
				"check that the listen address is available",
				err,
			), *jsonOutput)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, *shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errors.FatalError(errors.NewInternalError(
			"metrics server shutdown failed",
			err.Error(),
			"",
			err,
		), *jsonOutput)
	}

	ui.Success("Metrics server stopped")
}
