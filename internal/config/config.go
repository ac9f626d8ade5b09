// Package config содержит логику чтения конфигурации сервиса доставки Ondeir.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Хранилища корзины.
const (
	CartStoreRedis  = "redis"
	CartStoreMemory = "memory"
)

// Config содержит параметры конфигурации сервиса доставки.
type Config struct {
	RunAddress               string        `env:"RUN_ADDRESS"`
	DatabaseURI              string        `env:"DATABASE_URI"`
	FulfillmentSystemAddress string        `env:"FULFILLMENT_SYSTEM_ADDRESS"`
	FulfillmentPollInterval  time.Duration `env:"FULFILLMENT_POLL_INTERVAL"`
	RedisAddress             string        `env:"REDIS_ADDRESS"`
	CartStore                string        `env:"CART_STORE"`
	AuthSecret               string        `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки, файла .env и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fset *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fset.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	fset.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	fset.StringVar(&cfg.FulfillmentSystemAddress, "f", "", "fulfillment system address")
	fset.DurationVar(&cfg.FulfillmentPollInterval, "p", 2*time.Second, "fulfillment poll interval")
	fset.StringVar(&cfg.RedisAddress, "r", "", "redis address for carts")
	fset.StringVar(&cfg.CartStore, "c", "", "cart store: redis or memory")
	fset.StringVar(&cfg.AuthSecret, "s", "", "session signing secret")

	if err := fset.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// env не трогает поля, для которых переменная не задана, поэтому значения флагов сохраняются.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.CartStore == "" {
		cfg.CartStore = CartStoreMemory
		if cfg.RedisAddress != "" {
			cfg.CartStore = CartStoreRedis
		}
	}

	switch cfg.CartStore {
	case CartStoreMemory:
	case CartStoreRedis:
		if cfg.RedisAddress == "" {
			return nil, errors.New("redis cart store requires REDIS_ADDRESS")
		}
	default:
		return nil, fmt.Errorf("unknown cart store %q", cfg.CartStore)
	}

	if cfg.FulfillmentPollInterval <= 0 {
		return nil, fmt.Errorf("fulfillment poll interval must be positive, got %s", cfg.FulfillmentPollInterval)
	}

	return cfg, nil
}
