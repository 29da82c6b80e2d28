package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"citygate/internal/bootstrap"
	cityhandler "citygate/internal/city/handler"
	cityservice "citygate/internal/city/service"
	"citygate/internal/health"
	httpapi "citygate/internal/http"
	"citygate/internal/platform/config"
	"citygate/internal/platform/httpserver"
	"citygate/internal/platform/logger"
	"citygate/internal/platform/metrics"
	"citygate/internal/readiness"
	"citygate/internal/storage"
	"citygate/internal/storage/driver"
)

// main wires dependencies and owns the process lifecycle. The HTTP listener
// only starts after the readiness gate reports the backend reachable.
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, err := driver.Open(cfg.Storage)
	if err != nil {
		log.Error("failed to open storage backend", "driver", cfg.Storage.Driver, "error", err)
		return err
	}
	client, err := storage.New(backend,
		storage.WithTimeout(cfg.Storage.Timeout),
		storage.WithDriverName(cfg.Storage.Driver),
		storage.WithLogger(log),
		storage.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("closing storage client", "error", err)
		}
	}()

	gate, err := readiness.New(client,
		readiness.WithInterval(cfg.Readiness.Interval),
		readiness.WithMaxAttempts(cfg.Readiness.MaxAttempts),
		readiness.WithLogger(log),
		readiness.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	log.Info("waiting for storage backend",
		"driver", cfg.Storage.Driver,
		"interval", cfg.Readiness.Interval,
		"max_attempts", cfg.Readiness.MaxAttempts,
	)
	if err := gate.Wait(ctx); err != nil {
		log.Error("startup aborted", "error", err)
		return err
	}

	res := bootstrap.New(client, cfg.Storage.Collection,
		bootstrap.WithLogger(log),
		bootstrap.WithMetrics(m),
	).Run(ctx)
	if res.Err != nil {
		log.Warn("bootstrap incomplete, serving anyway", "error", res.Err)
	}

	svc, err := cityservice.New(client, cfg.Storage.Collection,
		cityservice.WithLogger(log),
		cityservice.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	router := httpapi.NewRouter(log, m, reg,
		cityhandler.New(svc, log),
		health.NewHandler(health.NewReporter(client, log)),
	)
	srv := httpserver.New(cfg.Addr, router, client.Timeout())

	return serve(ctx, log, srv, cfg.ShutdownTimeout)
}

// serve runs srv until ctx is cancelled, then drains it within timeout.
func serve(ctx context.Context, log *slog.Logger, srv *http.Server, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting citygate", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
