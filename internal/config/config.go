package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/text/currency"
)

type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreMongo    StoreDriver = "mongo"
)

type Postgres struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

// DSN builds the pgx connection string.
func (p Postgres) DSN() string {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.Username, p.Password, p.Host, p.Port, p.Database,
	)
	if p.Schema != "" {
		dsn += "&search_path=" + p.Schema
	}
	return dsn
}

type Mongo struct {
	URI      string
	Database string
}

type Stripe struct {
	SecretKey     string
	WebhookSecret string
}

type MobileMoney struct {
	APIURL string
	APIKey string
}

type Redis struct {
	Addr     string
	Password string
}

type Kafka struct {
	Brokers    []string
	StockTopic string
}

type Assistant struct {
	OpenAIKey string
	Model     string
}

type Config struct {
	Port          string
	PublicBaseURL string
	Currency      currency.Unit

	Driver   StoreDriver
	Postgres Postgres
	Mongo    Mongo

	Stripe      Stripe
	MobileMoney MobileMoney
	Redis       Redis
	Kafka       Kafka
	Assistant   Assistant

	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
}

// Load reads the process environment. A .env file in the working directory
// is loaded first when present.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only touch the store; payment settings
// are read but not required.
func LoadStore() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		Driver:        StoreDriver(getenv("STORE_DRIVER", string(StorePostgres))),
		Postgres: Postgres{
			Host:     os.Getenv("BLUEPRINT_DB_HOST"),
			Port:     getenv("BLUEPRINT_DB_PORT", "5432"),
			Database: os.Getenv("BLUEPRINT_DB_DATABASE"),
			Username: os.Getenv("BLUEPRINT_DB_USERNAME"),
			Password: os.Getenv("BLUEPRINT_DB_PASSWORD"),
			Schema:   os.Getenv("BLUEPRINT_DB_SCHEMA"),
		},
		Mongo: Mongo{
			URI:      os.Getenv("MONGO_URI"),
			Database: getenv("MONGO_DB_NAME", "quickcart"),
		},
		Stripe: Stripe{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		MobileMoney: MobileMoney{
			APIURL: os.Getenv("MOBILE_MONEY_API_URL"),
			APIKey: os.Getenv("MOBILE_MONEY_API_KEY"),
		},
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Kafka: Kafka{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			StockTopic: getenv("KAFKA_STOCK_TOPIC", "stock-adjustments"),
		},
		Assistant: Assistant{
			OpenAIKey: os.Getenv("OPENAI_API_KEY"),
			Model:     getenv("ASSISTANT_MODEL", "gpt-4o-mini"),
		},
	}

	var err error
	if cfg.Currency, err = currency.ParseISO(getenv("STORE_CURRENCY", "BDT")); err != nil {
		return nil, fmt.Errorf("STORE_CURRENCY: %w", err)
	}
	if cfg.ReconcileInterval, err = time.ParseDuration(getenv("RECONCILE_INTERVAL", "1m")); err != nil {
		return nil, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
	}
	if cfg.ReconcileLookback, err = time.ParseDuration(getenv("RECONCILE_LOOKBACK", "24h")); err != nil {
		return nil, fmt.Errorf("RECONCILE_LOOKBACK: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	errs := []error{c.validateStore()}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateStore() error {
	var errs []error
	switch c.Driver {
	case StorePostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			errs = append(errs, errors.New("BLUEPRINT_DB_HOST and BLUEPRINT_DB_DATABASE are required for the postgres store"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Driver))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
