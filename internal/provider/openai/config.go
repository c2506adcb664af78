package openai

// Config contains OpenAI provider configuration. Only credentials and
// transport knobs live here; per-model pricing is registered with the
// pricing registry. An empty APIKey leaves the provider out of the router.
//
// All fields map to OpenAI SDK options:
//   - APIKey: option.WithAPIKey
//   - BaseURL: option.WithBaseURL (overridable for proxies)
//   - Timeout: option.WithRequestTimeout, in seconds
//   - MaxRetries: option.WithMaxRetries
type Config struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"    envDefault:"https://api.openai.com/v1"`
	Timeout    int    `env:"OPENAI_TIMEOUT"     envDefault:"60"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"3"`
}
