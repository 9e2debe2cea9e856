package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config defines all environment-driven runtime options.
type Config struct {
	Host            string        `env:"OTPFETCH_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"OTPFETCH_PORT" envDefault:"3000"`
	Concurrency     int           `env:"OTPFETCH_CONCURRENCY" envDefault:"1"`
	LogLevel        string        `env:"OTPFETCH_LOG_LEVEL" envDefault:"info"`
	Proxy           string        `env:"OTPFETCH_UPSTREAM_PROXY"`
	TokenURL        string        `env:"OTPFETCH_TOKEN_URL" envDefault:"https://login.microsoftonline.com/common/oauth2/v2.0/token"`
	Scope           string        `env:"OTPFETCH_SCOPE" envDefault:"https://graph.microsoft.com/.default"`
	GraphBaseURL    string        `env:"OTPFETCH_GRAPH_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	MessageLimit    int           `env:"OTPFETCH_MESSAGE_LIMIT" envDefault:"10"`
	AccountTimeout  time.Duration `env:"OTPFETCH_ACCOUNT_TIMEOUT" envDefault:"30s"`
	HTTPTimeout     time.Duration `env:"OTPFETCH_HTTP_TIMEOUT" envDefault:"30s"`
	SortNewestFirst bool          `env:"OTPFETCH_SORT_NEWEST_FIRST" envDefault:"true"`
	CORSOrigins     []string      `env:"OTPFETCH_CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads .env (if present) and parses environment variables into Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("parse env config: OTPFETCH_CONCURRENCY must be >= 1, got %d", cfg.Concurrency)
	}

	return cfg, nil
}
