package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	RedisURL           string `env:"REDIS_URL,required"`
	IdentityJWTSecret  string `env:"IDENTITY_JWT_SECRET,required"`
	DirectoryBaseURL   string `env:"DIRECTORY_BASE_URL,required"`
	PresenceTTLMinutes int    `env:"PRESENCE_TTL_MINUTES" envDefault:"30"`
	RateLimitPerMin    int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if len(c.IdentityJWTSecret) < 32 {
		return fmt.Errorf("IDENTITY_JWT_SECRET must be at least 32 characters (generate with: openssl rand -base64 32)")
	}
	if c.PresenceTTLMinutes <= 0 {
		return fmt.Errorf("PRESENCE_TTL_MINUTES must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
