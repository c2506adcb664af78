package main

import (
	"context"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/admission"
	cacheredis "github.com/davidbz/hearth/internal/cache/redis"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/ledger"
	ledgermemory "github.com/davidbz/hearth/internal/ledger/memory"
	ledgerpostgres "github.com/davidbz/hearth/internal/ledger/postgres"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/pricing"
	"github.com/davidbz/hearth/internal/provider/echograph"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/relay"
	"github.com/davidbz/hearth/internal/router"
	"github.com/davidbz/hearth/internal/runs"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, logger *zap.Logger) {
		defer observability.Flush(logger)

		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.NewLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Pricing
	if err := container.Provide(func(cfg *config.BillingConfig) (*pricing.Policy, error) {
		return pricing.NewPolicy(cfg.CreditsPerUSD, cfg.MarkupFactor)
	}); err != nil {
		log.Fatalf("Failed to provide pricing policy: %v", err)
	}
	if err := container.Provide(pricing.NewRegistry); err != nil {
		log.Fatalf("Failed to provide pricing registry: %v", err)
	}

	// Ledger store: PostgreSQL when configured, in-memory otherwise.
	if err := container.Provide(func(cfg *config.DatabaseConfig, logger *zap.Logger) (domain.LedgerStore, error) {
		if cfg.DSN == "" {
			logger.Warn("no database configured, using in-memory ledger store")
			return ledgermemory.NewStore(), nil
		}

		db, err := ledgerpostgres.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return ledgerpostgres.NewStore(db), nil
	}); err != nil {
		log.Fatalf("Failed to provide ledger store: %v", err)
	}

	// Balance source: Redis cache when configured, direct store reads otherwise.
	if err := container.Provide(func(
		cfg *config.RedisConfig,
		store domain.LedgerStore,
		logger *zap.Logger,
	) domain.BalanceSource {
		if cfg.Addr == "" {
			logger.Warn("no redis configured, admission reads the ledger store directly")
			return admission.NewStoreBalanceSource(store)
		}

		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		ttl := time.Duration(cfg.BalanceTTLSeconds) * time.Second

		return cacheredis.NewBalanceCache(client, store, ttl, logger)
	}); err != nil {
		log.Fatalf("Failed to provide balance source: %v", err)
	}

	// Billing Ledger
	if err := container.Provide(func(
		store domain.LedgerStore,
		policy *pricing.Policy,
		registry *pricing.Registry,
		cfg *config.BillingConfig,
		logger *zap.Logger,
	) *ledger.Service {
		return ledger.NewService(store, policy, registry, cfg.StrictErrors, logger)
	}); err != nil {
		log.Fatalf("Failed to provide ledger service: %v", err)
	}

	// Admission Control
	if err := container.Provide(admission.NewController); err != nil {
		log.Fatalf("Failed to provide admission controller: %v", err)
	}

	// Event Relay
	if err := container.Provide(func(billing *ledger.Service, logger *zap.Logger) *relay.Relay {
		return relay.NewRelay(billing, logger)
	}); err != nil {
		log.Fatalf("Failed to provide relay: %v", err)
	}

	// Providers: echo always, OpenAI when configured.
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) ([]domain.Provider, error) {
		providers := []domain.Provider{echograph.NewProvider(logger)}

		if cfg.OpenAI.APIKey != "" {
			openaiProvider, err := openai.NewProvider(cfg.OpenAI, logger)
			if err != nil {
				return nil, err
			}
			providers = append(providers, openaiProvider)
		}

		return providers, nil
	}); err != nil {
		log.Fatalf("Failed to provide providers: %v", err)
	}

	// Register model pricing with the registry (invoked for side effects).
	if err := container.Invoke(func(cfg *config.Config, registry *pricing.Registry) error {
		ctx := context.Background()

		if err := echograph.RegisterPricing(ctx, registry); err != nil {
			return err
		}

		if cfg.OpenAI.APIKey != "" {
			if err := openai.RegisterPricing(ctx, registry); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		log.Fatalf("Failed to register model pricing: %v", err)
	}

	// Router
	if err := container.Provide(router.NewRouter); err != nil {
		log.Fatalf("Failed to provide router: %v", err)
	}

	// Run Service
	if err := container.Provide(runs.NewService); err != nil {
		log.Fatalf("Failed to provide run service: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(corsCfg *config.CORSConfig, logger *zap.Logger) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsCfg, logger)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
