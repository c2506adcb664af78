package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/provider/openai"
)

// Config represents the metering service configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Billing   BillingConfig
	Admission AdmissionConfig
	OpenAI    openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Billing-Account,X-Virtual-Key"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains settings for the balance cache. An empty address
// disables the cache; admission then reads the ledger store directly.
type RedisConfig struct {
	Addr              string `env:"REDIS_ADDR"`
	Password          string `env:"REDIS_PASSWORD"`
	DB                int    `env:"REDIS_DB"                  envDefault:"0"`
	BalanceTTLSeconds int    `env:"REDIS_BALANCE_TTL_SECONDS" envDefault:"30"`
}

// DatabaseConfig contains the ledger database settings. An empty DSN selects
// the in-memory ledger store.
type DatabaseConfig struct {
	DSN string `env:"DATABASE_DSN"`
}

// BillingConfig contains pricing policy and ledger settings.
type BillingConfig struct {
	CreditsPerUSD int64   `env:"BILLING_CREDITS_PER_USD" envDefault:"100"`
	MarkupFactor  float64 `env:"BILLING_MARKUP_FACTOR"   envDefault:"1.5"`

	// StrictErrors makes ledger write failures propagate instead of being
	// swallowed. Enabled only in test suites.
	StrictErrors bool `env:"BILLING_STRICT_ERRORS" envDefault:"false"`
}

// AdmissionConfig contains pre-flight cost estimation settings.
type AdmissionConfig struct {
	CompletionTokenCeiling int     `env:"ADMISSION_COMPLETION_TOKEN_CEILING" envDefault:"1024"`
	FlatUSDPer1KTokens     float64 `env:"ADMISSION_USD_PER_1K_TOKENS"        envDefault:"0.01"`
	CharsPerToken          int     `env:"ADMISSION_CHARS_PER_TOKEN"          envDefault:"4"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*RedisConfig
	*DatabaseConfig
	*BillingConfig
	*AdmissionConfig
	*openai.Config
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
		&cfg.Redis,
		&cfg.Database,
		&cfg.Billing,
		&cfg.Admission,
		&cfg.OpenAI,
	}
}
