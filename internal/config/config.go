package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL         string `env:"RABBITMQ_URL,required=true"`
	RedisURL            string `env:"REDIS_URL,required=true"`
	RegistryURL         string `env:"REGISTRY_URL,required=true"`
	MaxForwardAttempts  int    `env:"MAX_FORWARD_ATTEMPTS,default=5"`
	ForwardRatePerSec   int    `env:"FORWARD_RATE_PER_SEC,default=100"`
	ForwardTimeoutSec   int    `env:"FORWARD_TIMEOUT_SEC,default=10"`
	WorkerConcurrency   int    `env:"WORKER_CONCURRENCY,default=16"`
	QueryMaxLimit       int    `env:"QUERY_MAX_LIMIT,default=100"`
	RetryScanIntervalMS int    `env:"RETRY_SCAN_INTERVAL_MS,default=5000"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
