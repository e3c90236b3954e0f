package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MigrationsPath  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

type PaymentConfig struct {
	BaseURL  string
	Currency string
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr    string
	NameTTL time.Duration
}

type Config struct {
	App struct {
		Port          string
		OrderStatuses []string
	}
	Postgres PostgresConfig
	Catalog  CatalogConfig
	Payment  PaymentConfig
	Redis    RedisConfig
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Collaborator endpoints and database coordinates are required;
// everything else has a sensible default.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.OrderStatuses = strings.Split(getEnv("APP_ORDER_STATUSES", "PENDING,PAID,DELIVERED,CANCELLED"), ",")

	var err error
	if cfg.Postgres.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = requireEnv("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = requireEnv("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute

	if cfg.Catalog.BaseURL, err = requireEnv("CATALOG_BASE_URL"); err != nil {
		return nil, err
	}
	if cfg.Catalog.Timeout, err = durationEnv("CATALOG_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if cfg.Payment.BaseURL, err = requireEnv("PAYMENT_BASE_URL"); err != nil {
		return nil, err
	}
	cfg.Payment.Currency = getEnv("PAYMENT_CURRENCY", "usd")
	if cfg.Payment.Timeout, err = durationEnv("PAYMENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	if cfg.Redis.NameTTL, err = durationEnv("REDIS_NAME_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return value, nil
}
