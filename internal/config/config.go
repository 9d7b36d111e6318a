package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all convtrail configuration. Defaults mirror the invocation
// logging setup the tool was built against: a dedicated log group in
// us-east-1, a 24 hour window, 100 events.
type Config struct {
	LogGroup         string        `env:"CONVTRAIL_LOG_GROUP" envDefault:"bedrock-invoke-logging-us-east-1"`
	Region           string        `env:"CONVTRAIL_REGION" envDefault:"us-east-1"`
	Window           time.Duration `env:"CONVTRAIL_WINDOW" envDefault:"24h"`
	Limit            int           `env:"CONVTRAIL_LIMIT" envDefault:"100"`
	FilterPattern    string        `env:"CONVTRAIL_FILTER"` // empty means the default operation filter
	MaxPages         int           `env:"CONVTRAIL_MAX_PAGES" envDefault:"0"`
	PageRPS          float64       `env:"CONVTRAIL_PAGE_RPS" envDefault:"5"`
	LatestStreamOnly bool          `env:"CONVTRAIL_LATEST_STREAM" envDefault:"true"`
	Output           string        `env:"CONVTRAIL_OUTPUT" envDefault:"table"` // "table" or "ndjson"
	Pretty           bool          `env:"CONVTRAIL_PRETTY" envDefault:"false"`
	IncludeRaw       bool          `env:"CONVTRAIL_RAW" envDefault:"false"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// .env file is optional, mainly for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	switch cfg.Output {
	case "table", "ndjson":
	default:
		return nil, fmt.Errorf("config: unknown CONVTRAIL_OUTPUT %q (want table or ndjson)", cfg.Output)
	}
	return cfg, nil
}
