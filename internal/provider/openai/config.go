package openai

// Config contains configuration for one OpenAI-compatible backend.
// All fields map to OpenAI SDK options:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL()
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//   - MaxRetries: Maps to option.WithMaxRetries()
type Config struct {
	APIKey     string `env:"API_KEY"`
	BaseURL    string `env:"BASE_URL"`
	Timeout    int    `env:"TIMEOUT"     envDefault:"600"`
	MaxRetries int    `env:"MAX_RETRIES" envDefault:"2"`
}
