package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nabbar/opcua-core/config"
	"github.com/nabbar/opcua-core/eventloop/sysloop"
	"github.com/nabbar/opcua-core/metrics"
	"github.com/nabbar/opcua-core/server"
	"github.com/nabbar/opcua-core/transport/tcp"
)

func newRunCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the OPC UA server core and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", ":9090", "address to serve /metrics on")
	return cmd
}

func runServer(ctx context.Context, metricsAddr string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	loop := sysloop.New(nil)
	if err := loop.AddEventSource(tcp.New(loop, nil)); err != nil {
		return err
	}

	rec := metrics.New(prometheus.DefaultRegisterer)

	srv, err := server.New(cfg, loop, nil, server.WithRecorder(rec))
	if err != nil {
		return err
	}

	if err := srv.Startup(ctx); err != nil {
		return err
	}

	metricsSrv := metrics.NewServer(metricsAddr)
	metricsErrs := make(chan error, 1)
	metricsSrv.Start(metricsErrs)

	runCtx, cancelRun := context.WithCancel(ctx)
	running := &atomic.Bool{}
	running.Store(true)
	runErrs := make(chan error, 1)
	go func() { runErrs <- srv.Run(runCtx, running) }()

	waitForShutdownSignal(ctx, mergeErrs(metricsErrs, runErrs))
	running.Store(false)
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	disp := srv.RequestShutdown(cfg.ShutdownGracePeriod)
	_ = disp
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	_ = metricsSrv.Stop(shutdownCtx)
	return srv.Delete()
}

// mergeErrs fans two error channels into one so waitForShutdownSignal can
// select on either the metrics server or the steady-state run loop failing.
func mergeErrs(a, b <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		select {
		case err := <-a:
			out <- err
		case err := <-b:
			out <- err
		}
	}()
	return out
}

func waitForShutdownSignal(ctx context.Context, metricsErrs <-chan error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-quit:
	case <-ctx.Done():
	case <-metricsErrs:
	}
}
