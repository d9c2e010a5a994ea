package grok

// Config contains xAI API configuration.
type Config struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.x.ai/v1"`
	Timeout int    `env:"TIMEOUT"  envDefault:"600"`
}
