package google

// Config contains Gemini API configuration.
type Config struct {
	APIKey     string `env:"API_KEY"`
	BaseURL    string `env:"BASE_URL"     envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	AliasModel string `env:"ALIAS_MODEL"  envDefault:"gemini-2.0-flash"`
	Timeout    int    `env:"TIMEOUT"      envDefault:"600"`
}
