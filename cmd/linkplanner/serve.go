package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/linkplanner/internal/api"
	"github.com/signalsfoundry/linkplanner/internal/config"
	"github.com/signalsfoundry/linkplanner/internal/elevation"
	"github.com/signalsfoundry/linkplanner/internal/logging"
	"github.com/signalsfoundry/linkplanner/internal/observability"
	"github.com/signalsfoundry/linkplanner/internal/planner"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the planner HTTP API",
		Long:    `Serves the planning session over HTTP/JSON and exposes Prometheus metrics until interrupted.`,
		GroupID: "planner",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}
			if scenario, _ := cmd.Flags().GetString("scenario"); scenario != "" {
				cfg.Scenario = scenario
			}

			log, closeLog, err := logging.Open(cfg.LoggingConfig())
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.HTTP.Addr)
			if err != nil {
				log.Error(ctx, "failed to listen", logging.String("addr", cfg.HTTP.Addr), logging.Err(err))
				return err
			}
			return run(ctx, cfg, log, lis, prometheus.DefaultRegisterer)
		},
	}
	cmd.Flags().String("addr", "", "override http.addr")
	cmd.Flags().String("scenario", "", "seed the session from a YAML/JSON scenario file")
	return cmd
}

// run serves the API on lis until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener, reg prometheus.Registerer) error {
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ObservabilityTracing(), log)
	if err != nil {
		return fmt.Errorf("initialise tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	state := planner.NewState(log, planner.WithMetricsRecorder(collector))
	if cfg.Scenario != "" {
		if err := loadScenario(ctx, state, cfg.Scenario); err != nil {
			return err
		}
	}

	metricsSrv := serveMetrics(cfg.Metrics.Addr, collector, log)

	var provider planner.ElevationProvider
	if cfg.Elevation.Disabled {
		log.Info(ctx, "elevation lookups disabled")
		provider = elevation.Disabled()
	} else {
		client := elevation.NewClient(cfg.Elevation.BaseURL,
			elevation.WithCacheTTL(cfg.Elevation.CacheTTL),
			elevation.WithMaxRetries(cfg.Elevation.MaxRetries),
			elevation.WithLogger(log),
			elevation.WithRecorder(collector),
		)
		client.Start()
		defer client.Close()
		provider = client
	}

	zones := planner.NewZoneResolver(state, provider, log,
		planner.WithElevationTimeout(cfg.Elevation.Timeout))

	srv := &http.Server{
		Handler:           api.NewServer(state, zones, collector, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting planner API", logging.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error(ctx, "planner API exited", logging.Err(serveErr))
	}

	log.Info(ctx, "shutting down planner API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "API shutdown failed", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

func loadScenario(ctx context.Context, state *planner.State, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	if _, err := planner.LoadScenario(ctx, state, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
