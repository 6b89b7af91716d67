package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	JWTSecret     string        `env:"JWT_SECRET,required"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"text"`
	BidValidity   time.Duration `env:"BID_VALIDITY" envDefault:"168h"`
	LocationTTL   time.Duration `env:"LOCATION_RETENTION" envDefault:"720h"`

	Postgres PostgresConfig
	Redis    RedisConfig
	Nats     NatsConfig
	Push     PushConfig
	Payments PaymentsConfig
	Admin    AdminConfig
}

type PostgresConfig struct {
	URL         string `env:"DATABASE_URL"`
	User        string `env:"DB_USER" envDefault:"postgres"`
	Password    string `env:"DB_PASSWORD" envDefault:"postgres"`
	Host        string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port        string `env:"DB_PORT" envDefault:"5432"`
	Name        string `env:"DB_NAME" envDefault:"stonemart"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// DSN prefers DATABASE_URL and falls back to the DB_* parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.Name)
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type NatsConfig struct {
	URL string `env:"NATS_URL"`
}

type PushConfig struct {
	GatewayURL string `env:"PUSH_GATEWAY_URL"`
	Token      string `env:"PUSH_GATEWAY_TOKEN"`
}

type PaymentsConfig struct {
	WebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET" envDefault:"dev-webhook-secret"`
	Currency      string `env:"PAYMENT_CURRENCY" envDefault:"usd"`
}

type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
	Name     string `env:"ADMIN_NAME" envDefault:"Administrator"`
}

// Load reads an optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}
