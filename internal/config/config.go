package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/shilvister/devochat/internal/provider/anthropic"
	"github.com/shilvister/devochat/internal/provider/google"
	"github.com/shilvister/devochat/internal/provider/grok"
	"github.com/shilvister/devochat/internal/provider/mistral"
	"github.com/shilvister/devochat/internal/provider/openai"
	"github.com/shilvister/devochat/internal/provider/responses"
	redisstore "github.com/shilvister/devochat/internal/store/redis"
)

// Config represents the aggregator configuration.
type Config struct {
	Server ServerConfig
	CORS   CORSConfig
	Assets AssetsConfig
	Redis  redisstore.Config `envPrefix:"REDIS_"`

	OpenAI     openai.Config `envPrefix:"OPENAI_"`
	Perplexity openai.Config `envPrefix:"PERPLEXITY_"`
	Fireworks  openai.Config `envPrefix:"FIREWORKS_"`
	Friendli   openai.Config `envPrefix:"FRIENDLI_"`

	Responses responses.Config `envPrefix:"OPENAI_"`
	Anthropic anthropic.Config `envPrefix:"ANTHROPIC_"`
	Google    google.Config    `envPrefix:"GEMINI_"`
	Grok      grok.Config      `envPrefix:"GROK_"`
	Mistral   mistral.Config   `envPrefix:"MISTRAL_"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int `env:"SERVER_PORT"         envDefault:"8080"`
	ReadTimeout int `env:"SERVER_READ_TIMEOUT" envDefault:"30"`
	// WriteTimeout must accommodate long-lived SSE streams.
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"600"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// AssetsConfig points at the static configuration files and the upload root.
type AssetsConfig struct {
	ChatModelsFile string `env:"CHAT_MODELS_FILE" envDefault:"config/chat_models.json"`
	MCPServersFile string `env:"MCP_SERVERS_FILE" envDefault:"config/mcp_servers.json"`
	PromptsDir     string `env:"PROMPTS_DIR"      envDefault:"prompts"`
	UploadRoot     string `env:"UPLOAD_ROOT"      envDefault:"."`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*AssetsConfig
	*redisstore.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Assets,
		&cfg.Redis,
	}
}
