package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ledger_go/internal/app"
	"ledger_go/internal/event"
	"ledger_go/internal/infra/horizon"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	metricsAddr := flag.String("metrics", "localhost:9100", "metrics listen address")
	flag.Parse()

	// Pprof server (localhost only)
	go func() {
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics endpoint over the private registry
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(bootstrap.Registry, promhttp.HandlerOpts{}))
		slog.Info("Metrics server started", slog.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	event.Warmup()

	eng := bootstrap.Engine
	eng.Start(ctx)
	defer eng.Stop()

	if err := bootstrap.RecoverOrders(); err != nil {
		slog.Error("Order recovery failed", slog.Any("error", err))
	}

	// Settlement stream is optional; polling covers its absence.
	cfg := bootstrap.Config
	if cfg.Ledger.StreamURL != "" {
		stream := horizon.NewStreamWorker(cfg.Ledger.StreamURL, cfg.Trading.AccountID, eng.FillInbox())
		if err := stream.Connect(ctx); err != nil {
			slog.Error("Failed to connect settlement stream", slog.Any("error", err))
		}
		defer stream.Disconnect()
		slog.InfoContext(ctx, "Settlement stream worker started")
	}

	slog.InfoContext(ctx, "Ledger trader fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()

	slog.InfoContext(ctx, "Shutting down gracefully...")
}
