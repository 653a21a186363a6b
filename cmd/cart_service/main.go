// Package main runs the cart service: the cart API over HTTP, gRPC health probes and optional pprof.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/abgdnv/gomarketplace/internal/app"
	"github.com/abgdnv/gomarketplace/internal/config"
	"github.com/abgdnv/gomarketplace/internal/notify"
	"github.com/abgdnv/gomarketplace/pkg/bootstrap"
	"github.com/abgdnv/gomarketplace/pkg/config/configloader"
	"github.com/abgdnv/gomarketplace/pkg/messaging"
	pnats "github.com/abgdnv/gomarketplace/pkg/nats"
	"github.com/abgdnv/gomarketplace/pkg/telemetry"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// notifierBuffer is the number of cart snapshots waiting for the broker before the oldest is dropped.
const notifierBuffer = 64

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run initializes the application, opens the cart storage and starts the HTTP, gRPC and pprof servers.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](config.ServiceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, config.ServiceName, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	meterProvider, metricsHandler, err := telemetry.NewMeterProvider(config.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}

	storage, err := app.OpenStorage(ctx, cfg.Storage, cfg.Resilience.CircuitBreaker, logger)
	if err != nil {
		return fmt.Errorf("failed to open cart storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error("Failed to close cart storage", "error", err)
		}
	}()

	deps := app.SetupDependencies(ctx, storage.KV, cfg, logger)
	if cfg.Telemetry.Metrics.Enabled {
		deps.Metrics = metricsHandler
		deps.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	g, gCtx := errgroup.WithContext(ctx)

	// drain pending cart writes once everything that can mutate the cart has stopped
	defer func() {
		logger.Info("Flushing pending cart writes", "pending", deps.Cart.PendingWrites())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.DrainTimeout)
		defer cancel()
		if err := deps.Cart.Close(shutdownCtx); err != nil {
			logger.Error("Cart writes were not flushed", "error", err, "persisted_generation", deps.Cart.PersistedGeneration(), "generation", deps.Cart.Generation())
		}
	}()

	if cfg.NATS.Enabled {
		nc, err := pnats.NewClient(cfg.NATS.Url, cfg.NATS.Timeout)
		if err != nil {
			return err
		}
		defer nc.Close()
		js, err := pnats.NewJetStreamContext(nc)
		if err != nil {
			return err
		}
		if err := pnats.EnsureStream(ctx, js, messaging.CartStream, messaging.CartUpdatedSubject); err != nil {
			return err
		}
		notifier := notify.NewNotifier(pnats.NewNatsPublisher(js), cfg.Resilience.Retry, notifierBuffer, logger)
		unsubscribe := deps.Cart.Subscribe(notifier.Handle)
		defer unsubscribe()
		g.Go(func() error {
			return notifier.Run(gCtx)
		})
		logger.Info("Publishing cart events", "subject", messaging.CartUpdatedSubject)
	}

	httpServer := app.SetupHttpServer(deps, cfg)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.GRPC.Enabled {
		healthServer := health.NewServer()
		grpcServer := app.SetupGrpcServer(deps, healthServer, cfg.GRPC.ReflectionEnabled)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

		// Start the gRPC server
		g.Go(func() error {
			grpcAddr := ":" + cfg.GRPC.Port
			lis, err := net.Listen("tcp", grpcAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on gRPC port: %w", err)
			}
			logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
			return grpcServer.Serve(lis)
		})
		// gracefully shutdown gRPC server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			healthServer.Shutdown()
			logger.Info("Shutting down gRPC server...")
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
				logger.Info("gRPC server stopped gracefully.")
				return nil
			case <-time.After(cfg.Shutdown.Timeout):
				logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
				grpcServer.Stop()
				return fmt.Errorf("grpc server graceful stop timed out")
			}
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr:              cfg.PProf.Addr,
			ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	// flush telemetry on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down telemetry providers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return errors.Join(tracerProvider.Shutdown(shutdownCtx), meterProvider.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}
