package main

import (
	"context"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	rediscache "github.com/minbak/hearth/internal/cache/redis"
	"github.com/minbak/hearth/internal/config"
	"github.com/minbak/hearth/internal/domain"
	"github.com/minbak/hearth/internal/httpserver"
	"github.com/minbak/hearth/internal/httpserver/middleware"
	"github.com/minbak/hearth/internal/imagestore"
	"github.com/minbak/hearth/internal/observability"
	"github.com/minbak/hearth/internal/provider/echo"
	"github.com/minbak/hearth/internal/provider/openai"
	"github.com/minbak/hearth/internal/storage"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

//nolint:funlen // Container wiring is a straight list of providers.
func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor any) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide dependency: %v", err)
		}
	}

	// Configuration
	provide(config.Load)
	provide(config.ParseDependenciesConfig)

	// Observability
	provide(observability.InitLogger)

	// Storage
	provide(func(cfg *config.StorageConfig) (*storage.Store, error) {
		return storage.Open(context.Background(), cfg.Driver, cfg.DSN, cfg.AutoMigrate, cfg.MigrationsDir)
	})
	provide(func(store *storage.Store) domain.ConversationStore {
		return store
	})

	// Upstream provider. Without an API key the in-process echo provider
	// answers instead, which keeps local development working offline.
	provide(func(cfg *openai.Config) (domain.Provider, error) {
		if cfg.APIKey == "" {
			observability.FromContext(context.Background()).
				Warn("OPENAI_API_KEY not set, falling back to echo provider")
			return echo.NewProvider(), nil
		}
		return openai.NewProvider(*cfg)
	})

	// Generated image files
	provide(func(cfg *config.ImagesConfig) (*imagestore.Store, error) {
		return imagestore.New(cfg.Dir, cfg.BasePath)
	})
	provide(func(store *imagestore.Store) domain.ImageFileStore {
		return store
	})

	// Reply cache (optional)
	provide(func(cfg *config.RedisConfig) (domain.ReplyCache, error) {
		if cfg.Addr == "" {
			return nil, nil
		}
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return rediscache.NewReplyCache(context.Background(), client)
	})

	// Pricing
	provide(func(cfg *config.PricingConfig) *domain.PriceTable {
		return domain.NewPriceTable(cfg.DefaultModel)
	})
	provide(func(table *domain.PriceTable, cfg *config.PricingConfig) *domain.Accountant {
		return domain.NewAccountant(table, cfg.ExchangeRate)
	})

	// Domain services
	provide(func(
		store domain.ConversationStore,
		provider domain.Provider,
		images domain.ImageFileStore,
		cache domain.ReplyCache,
		accountant *domain.Accountant,
		pricing *config.PricingConfig,
		chat *config.ChatConfig,
		redis *config.RedisConfig,
	) *domain.ChatService {
		return domain.NewChatService(store, provider, images, cache, accountant, domain.ChatOptions{
			DefaultModel: pricing.DefaultModel,
			HistoryLimit: chat.HistoryLimit,
			CacheTTL:     time.Duration(redis.TTL) * time.Second,
		})
	})

	// HTTP layer
	provide(middleware.BuildMiddlewareChain)
	provide(httpserver.NewHandler)
	provide(httpserver.NewServer)

	return container
}
