package mistral

// Config contains Mistral API configuration.
type Config struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.mistral.ai/v1"`
	Timeout int    `env:"TIMEOUT"  envDefault:"600"`
}
