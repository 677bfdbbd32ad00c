// Package main implements the peakwatch tracker service.
// The tracker polls an upstream value, keeps the all-time high and a short
// history of records in durable storage, announces each new record, and serves
// the state over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/config"
	"github.com/HatiCode/peakwatch/cmd/peakwatch/logger"
	"github.com/HatiCode/peakwatch/cmd/peakwatch/metrics"
	"github.com/HatiCode/peakwatch/cmd/peakwatch/notifier"
	"github.com/HatiCode/peakwatch/cmd/peakwatch/router"
	"github.com/HatiCode/peakwatch/cmd/peakwatch/store"
	"github.com/HatiCode/peakwatch/pkg/adapters"
	"github.com/HatiCode/peakwatch/pkg/httpx"
	"github.com/HatiCode/peakwatch/pkg/notify"
	"github.com/HatiCode/peakwatch/pkg/records"
)

var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting peakwatch",
		"version", version,
		"config", cfg,
	)

	backend := store.New(cfg, log)
	defer backend.Close()

	m := metrics.New(prometheus.DefaultRegisterer, cfg.Metric)

	channel, err := notifier.New(cfg, log)
	if err != nil {
		log.Error("failed to configure notifiers", "error", err)
		os.Exit(1)
	}
	gateway := notify.NewGateway(channel, log,
		notify.WithMetricName(cfg.Metric),
		notify.WithMinValue(cfg.NotificationThreshold),
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithRecorder(m),
	)

	recordStore := records.New(backend,
		records.WithCapacity(cfg.HistoryCapacity),
		records.WithPersistTimeout(cfg.PersistTimeout),
		records.WithLogger(log),
	)

	tracker := NewTracker(newSource(cfg), recordStore, gateway, m, cfg.FetchTimeout, log)

	handler := router.SetupRoutes(recordStore, router.Options{
		Metric:    cfg.Metric,
		Capacity:  cfg.HistoryCapacity,
		StaticDir: cfg.StaticDir,
		Ready: func() error {
			if !recordStore.Initialized() {
				return errors.New("state not loaded")
			}
			return nil
		},
	}, log)
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Stop(10 * time.Second)
	})

	var healthServer *health.Server
	if cfg.GRPCListen != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}

		grpcServer := grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		reflection.Register(grpcServer)

		g.Go(func() error {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		state, err := records.Bootstrap(gctx, backend, recordStore, log)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		m.SetCurrentHigh(state.CurrentHigh)
		if healthServer != nil {
			healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		}

		if err := tracker.Run(gctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()

	log.Info("shutting down")
	gateway.Wait()

	if err != nil {
		log.Error("peakwatch failed", "error", err)
		backend.Close()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func newSource(cfg *config.Config) adapters.Source {
	switch cfg.Source {
	case "prometheus":
		return &adapters.PrometheusAdapter{
			ServerURL: cfg.PromURL,
			Query:     cfg.PromQuery,
		}
	default:
		return &adapters.SteamAdapter{
			BaseURL: cfg.SteamAPIURL,
			AppID:   cfg.SteamAppID,
			APIKey:  cfg.SteamAPIKey,
		}
	}
}
