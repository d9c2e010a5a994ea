package anthropic

// Config contains Anthropic Messages API configuration.
type Config struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.anthropic.com"`
	Version string `env:"VERSION"  envDefault:"2023-06-01"`
	Timeout int    `env:"TIMEOUT"  envDefault:"600"`
}
