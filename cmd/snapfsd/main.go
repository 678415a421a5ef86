// Copyright 2023 Google Inc. All Rights Reserved.
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

// Command snapfsd is the single-threaded cooperative server
// describes: it mounts one disk image, bootstraps the snapshot machinery,
// and serves OPEN/READ/WRITE/... requests over a unix domain socket one
// at a time.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/snapfs-project/snapfs/cmd"
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/clock"
	"github.com/snapfs-project/snapfs/internal/fsserver"
	"github.com/snapfs-project/snapfs/internal/ipc"
	"github.com/snapfs-project/snapfs/internal/logger"
	"github.com/snapfs-project/snapfs/internal/metrics"
	"github.com/snapfs-project/snapfs/internal/snapshot"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gopkg.in/yaml.v3"
)

var (
	metricsAddr string
	dumpConfig  bool
)

var rootCmd = &cobra.Command{
	Use:   "snapfsd",
	Short: "Serve a snapshot-capable block filesystem over a unix socket.",
	RunE: func(c *cobra.Command, args []string) error {
		conf, err := cmd.LoadConfig(c)
		if err != nil {
			return err
		}
		if dumpConfig {
			return printConfig(conf)
		}
		return run(conf)
	},
}

func init() {
	cmd.BindPersistentFlags(rootCmd)
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on, or empty to disable.")
	rootCmd.Flags().BoolVar(&dumpConfig, "dump-config", false, "Print the fully resolved configuration as YAML and exit, without mounting anything.")
}

// printConfig renders the resolved configuration the same format a
// --config-file accepts, so an operator can capture the effect of a set
// of flags as a reusable file.
func printConfig(conf cfg.Config) error {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run mounts the disk image, bootstraps the snapshot machinery (on every
// mount, installing a fresh working snapshot), and serves IPC requests
// until SIGINT/SIGTERM.
func run(conf cfg.Config) error {
	if err := logger.Init(conf.Logging); err != nil {
		return fmt.Errorf("logger.Init: %w", err)
	}

	store, err := openOrCreateStore(conf.Disk.ImagePath, conf.Disk.NBlocks)
	if err != nil {
		return fmt.Errorf("opening disk image %q: %w", conf.Disk.ImagePath, err)
	}
	defer store.Close()

	clk := clock.RealClock{}
	if err := snapshot.Bootstrap(store, conf.Snapshot, clk); err != nil {
		return fmt.Errorf("snapshot.Bootstrap: %w", err)
	}

	met, stopMetrics, err := setupMetrics(metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	srv := fsserver.New(store, conf.Snapshot, clk)
	ln, err := ipc.Listen(conf.IPC.SocketPath, srv, met)
	if err != nil {
		return fmt.Errorf("ipc.Listen: %w", err)
	}
	defer ln.Close()

	logger.Infof("snapfsd: serving %s on %s", conf.Disk.ImagePath, conf.IPC.SocketPath)

	serveErr := make(chan error, 1)
	go func() { serveErr <- ln.Serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-signalChan():
		logger.Infof("snapfsd: shutting down")
		ln.Close()
		syncErr := store.Sync()
		if err := logger.Close(); err != nil && syncErr == nil {
			return err
		}
		return syncErr
	}
}

func signalChan() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}

// setupMetrics wires the otel prometheus exporter into the global
// MeterProvider and serves it over HTTP, following the usual otel
// common/otel_metrics.go NewOTelMetrics() convention of constructing one
// meter provider per process. Passing an empty addr disables metrics
// entirely (used by tests, which dial a bare unix socket with no HTTP
// listener).
func setupMetrics(addr string) (*metrics.Handle, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	handle, err := metrics.New()
	if err != nil {
		return nil, nil, fmt.Errorf("metrics.New: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warnf("metrics server: %v", err)
		}
	}()

	return handle, func() { httpSrv.Close() }, nil
}

func openOrCreateStore(imagePath string, nblocks uint32) (*block.Store, error) {
	if _, err := os.Stat(imagePath); err == nil {
		return block.Open(imagePath)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return block.Create(imagePath, nblocks)
}
