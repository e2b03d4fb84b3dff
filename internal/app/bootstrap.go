package app

import (
	"context"
	"log/slog"

	"ledger_go/internal/engine"
	"ledger_go/internal/infra"
	"ledger_go/internal/infra/horizon"
	"ledger_go/internal/infra/storage"
	"ledger_go/internal/service"

	"github.com/prometheus/client_golang/prometheus"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Registry *prometheus.Registry
	Metrics  *infra.Metrics
	Pool     *infra.EndpointPool
	Client   *horizon.Client
	Assets   *service.AssetService
	Engine   *engine.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization and wires the engine
// from its collaborators. Nothing here touches the network.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("Bootstrapping ledger trader...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage("")
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	b.Registry = prometheus.NewRegistry()
	b.Metrics = infra.NewMetrics(b.Registry)

	b.Assets = service.NewAssetService(cfg.Trading.SupportedAssets)

	signing, err := horizon.SigningFromConfig(cfg.Ledger.SigningSeed)
	if err != nil {
		return err
	}
	if _, serr := signing.Signer(); serr != nil {
		slog.Warn("No signing key configured, submissions will be rejected")
	}

	// The pool probes through the client and the client routes through
	// the pool; the closure breaks the construction cycle. Probing only
	// starts once the engine does.
	b.Pool = infra.NewEndpointPool(
		cfg.Ledger.Endpoints,
		func(ctx context.Context, addr string) (bool, error) {
			return b.Client.Probe(ctx, addr)
		},
		cfg.ProbeInterval(),
		cfg.ProbeBackoff(),
		b.Metrics,
	)

	limiter := infra.NewRateLimiter(cfg.Ledger.OrderBurst, cfg.Ledger.OrderRatePerSec)
	b.Client = horizon.NewClient(cfg, b.Pool, signing, limiter)

	b.Engine = engine.NewEngine(engine.Deps{
		AccountID: cfg.Trading.AccountID,
		Client:    b.Client,
		Pool:      b.Pool,
		Sequences: engine.NewSequenceCoordinator(b.Client, b.Metrics),
		Validator: b.Assets,
		Observer:  infra.NewSlogObserver(logger),
		Metrics:   b.Metrics,
		Store:     b.Storage,
		Limits: engine.Limits{
			MinAmount: cfg.Trading.MinOrderAmount,
			MaxAmount: cfg.Trading.MaxOrderAmount,
			MinPrice:  cfg.Trading.MinPrice,
			MaxPrice:  cfg.Trading.MaxPrice,
		},
		Breaker: infra.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
			RecoveryTimeout:  cfg.RecoveryTimeout(),
		},
		MonitorInterval:    cfg.MonitorInterval(),
		MissingOfferPolicy: cfg.Trading.MissingOfferPolicy,
	})

	slog.Info("Engine wired",
		slog.String("account", cfg.Trading.AccountID),
		slog.Int("endpoints", len(cfg.Ledger.Endpoints)))
	return nil
}

// RecoverOrders reloads persisted open orders into the engine so the
// monitor picks them up after a restart.
func (b *Bootstrap) RecoverOrders() error {
	orders, err := b.Storage.LoadOpenOrders()
	if err != nil {
		return err
	}
	for _, o := range orders {
		b.Engine.RestoreOrder(o)
	}
	if len(orders) > 0 {
		slog.Info("Recovered open orders", slog.Int("count", len(orders)))
	}
	return nil
}
