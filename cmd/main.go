package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/config"
	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/httpserver"
	"github.com/shilvister/devochat/internal/httpserver/middleware"
	"github.com/shilvister/devochat/internal/observability"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/anthropic"
	"github.com/shilvister/devochat/internal/provider/echo"
	"github.com/shilvister/devochat/internal/provider/google"
	"github.com/shilvister/devochat/internal/provider/grok"
	"github.com/shilvister/devochat/internal/provider/mistral"
	"github.com/shilvister/devochat/internal/provider/openai"
	"github.com/shilvister/devochat/internal/provider/registry"
	"github.com/shilvister/devochat/internal/provider/responses"
	redisstore "github.com/shilvister/devochat/internal/store/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *httpserver.Server, store *redisstore.Store, logger *zap.Logger) {
		go func() {
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			<-sigs

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.Error("shutdown failed", zap.Error(err))
			}
			if err := store.Close(); err != nil {
				logger.Error("store close failed", zap.Error(err))
			}
		}()

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
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Static assets
	if err := container.Provide(func(assets *config.AssetsConfig) (domain.BillingTable, error) {
		return config.LoadBillingTable(assets.ChatModelsFile)
	}); err != nil {
		log.Fatalf("Failed to provide billing table: %v", err)
	}
	if err := container.Provide(func(assets *config.AssetsConfig) (domain.MCPDirectory, error) {
		return config.LoadMCPDirectory(assets.MCPServersFile)
	}); err != nil {
		log.Fatalf("Failed to provide MCP directory: %v", err)
	}
	if err := container.Provide(func(assets *config.AssetsConfig) domain.Prompts {
		return config.LoadPrompts(assets.PromptsDir)
	}); err != nil {
		log.Fatalf("Failed to provide prompts: %v", err)
	}
	if err := container.Provide(func(assets *config.AssetsConfig) *domain.PartResolver {
		return domain.NewPartResolver(assets.UploadRoot)
	}); err != nil {
		log.Fatalf("Failed to provide part resolver: %v", err)
	}

	// Domain services
	if err := container.Provide(domain.NewPermissionGate); err != nil {
		log.Fatalf("Failed to provide permission gate: %v", err)
	}

	// Storage
	if err := container.Provide(redisstore.NewClient); err != nil {
		log.Fatalf("Failed to provide Redis client: %v", err)
	}
	if err := container.Provide(redisstore.NewStore); err != nil {
		log.Fatalf("Failed to provide store: %v", err)
	}
	if err := container.Provide(func(s *redisstore.Store) domain.UserStore { return s }); err != nil {
		log.Fatalf("Failed to provide user store: %v", err)
	}
	if err := container.Provide(func(s *redisstore.Store) domain.ConversationStore { return s }); err != nil {
		log.Fatalf("Failed to provide conversation store: %v", err)
	}

	// Provider registry
	if err := container.Provide(registry.NewRegistry); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Gemini doubles as the alias backend, so it is provided separately.
	// A nil adapter means the backend is not configured.
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *google.Adapter {
		if cfg.Google.APIKey == "" {
			return nil
		}
		adapter, err := google.NewAdapter(cfg.Google)
		if err != nil {
			logger.Warn("Gemini adapter unavailable", zap.Error(err))
			return nil
		}
		return adapter
	}); err != nil {
		log.Fatalf("Failed to provide Gemini adapter: %v", err)
	}
	if err := container.Provide(func(adapter *google.Adapter) httpserver.AliasGenerator {
		if adapter == nil {
			return nil
		}
		return adapter
	}); err != nil {
		log.Fatalf("Failed to provide alias generator: %v", err)
	}

	// Register the configured adapters (invoked for side effects).
	if err := container.Invoke(registerAdapters); err != nil {
		log.Fatalf("Failed to register adapters: %v", err)
	}

	// HTTP layer
	if err := container.Provide(func(cors *config.CORSConfig, users domain.UserStore) middleware.Middleware {
		return middleware.BuildMiddlewareChain(cors, users)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerAdapters wires every adapter whose backend is configured. Missing
// API keys are skipped, not fatal: deployments enable the providers they use.
func registerAdapters(reg *registry.Registry, cfg *config.Config, gemini *google.Adapter, logger *zap.Logger) error {
	if err := reg.Register(echo.NewAdapter()); err != nil {
		return err
	}

	type factory struct {
		configured bool
		build      func() (pipeline.Adapter, error)
	}

	factories := []factory{
		{cfg.OpenAI.APIKey != "", func() (pipeline.Adapter, error) { return openai.NewAdapter("openai", cfg.OpenAI) }},
		{cfg.Perplexity.APIKey != "", func() (pipeline.Adapter, error) {
			return openai.NewAdapter("perplexity", withBaseURL(cfg.Perplexity, "https://api.perplexity.ai"))
		}},
		{cfg.Fireworks.APIKey != "", func() (pipeline.Adapter, error) {
			return openai.NewAdapter("fireworks", withBaseURL(cfg.Fireworks, "https://api.fireworks.ai/inference/v1"))
		}},
		{cfg.Friendli.APIKey != "", func() (pipeline.Adapter, error) {
			return openai.NewAdapter("friendli", withBaseURL(cfg.Friendli, "https://api.friendli.ai/serverless/v1"))
		}},
		{cfg.Responses.APIKey != "", func() (pipeline.Adapter, error) { return responses.NewAdapter(cfg.Responses) }},
		{cfg.Anthropic.APIKey != "", func() (pipeline.Adapter, error) { return anthropic.NewAdapter(cfg.Anthropic) }},
		{cfg.Grok.APIKey != "", func() (pipeline.Adapter, error) { return grok.NewAdapter(cfg.Grok) }},
		{cfg.Mistral.APIKey != "", func() (pipeline.Adapter, error) { return mistral.NewAdapter(cfg.Mistral) }},
	}

	for _, f := range factories {
		if !f.configured {
			continue
		}
		adapter, err := f.build()
		if err != nil {
			logger.Warn("adapter unavailable", zap.Error(err))
			continue
		}
		if err := reg.Register(adapter); err != nil {
			return err
		}
	}

	if gemini != nil {
		if err := reg.Register(gemini); err != nil {
			return err
		}
	}

	logger.Info("adapters registered", zap.Strings("endpoints", reg.List()))
	return nil
}

// withBaseURL fills the per-endpoint default base URL when the environment
// did not override it.
func withBaseURL(cfg openai.Config, baseURL string) openai.Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	return cfg
}
