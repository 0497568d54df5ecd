package config

import (
	"fmt"
	"os"
	"strconv"
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
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Addr string // empty disables the product cache
	DB   int
}

type AMQPConfig struct {
	URL      string // empty disables event publishing
	Exchange string
}

type Config struct {
	App struct {
		Port string
	}
	Postgres PostgresConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Missing required variables are reported as an error rather
// than defaulted.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = envOrDefault("APP_PORT", "8080")

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
	cfg.Postgres.SSLMode = envOrDefault("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = int32(envIntOrDefault("DB_MAX_CONNS", 10))
	cfg.Postgres.MinConns = int32(envIntOrDefault("DB_MIN_CONNS", 2))
	cfg.Postgres.MaxConnLifetime = time.Duration(envIntOrDefault("DB_MAX_CONN_LIFETIME_MINUTES", 30)) * time.Minute
	cfg.Postgres.MigrationsPath = envOrDefault("DB_MIGRATIONS_PATH", "migrations")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.DB = envIntOrDefault("REDIS_DB", 0)

	cfg.AMQP.URL = os.Getenv("AMQP_URL")
	cfg.AMQP.Exchange = envOrDefault("AMQP_EXCHANGE", "order.events")

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
