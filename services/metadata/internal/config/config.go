// Package config loads metadatad runtime configuration from the environment.
package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the metadata service.
type Config struct {
	Addr           string   `env:"ADDR,default=:8080"`
	DBDSN          string   `env:"DB_DSN,required"`
	NATSURL        string   `env:"NATS_URL"`
	APIBaseURL     string   `env:"API_BASE_URL"`
	TemplateBucket string   `env:"TEMPLATE_BUCKET,default=hatchd-templates"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
	S3Enabled      bool     `env:"S3_ENABLED,default=false"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
