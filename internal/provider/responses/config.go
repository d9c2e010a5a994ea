package responses

// Config contains OpenAI Responses API configuration.
type Config struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	Timeout int    `env:"TIMEOUT"  envDefault:"600"`
}
