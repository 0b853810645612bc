package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port                 string        `envconfig:"PORT" default:"8080"`
	Environment          string        `envconfig:"ENVIRONMENT" default:"development"`
	AWSRegion            string        `envconfig:"AWS_REGION" default:"us-east-1"`
	OrderTableName       string        `envconfig:"ORDER_TABLE_NAME" default:"orders"`
	GiftCardTableName    string        `envconfig:"GIFT_CARD_TABLE_NAME" default:"gift_cards"`
	KafkaBrokers         string        `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	IdempotencyDBPath    string        `envconfig:"IDEMPOTENCY_DB_PATH" default:"idempotency.db"`
	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"24h"`
	PaymentGateways      string        `envconfig:"PAYMENT_GATEWAYS" default:""`
	GatewayTimeout       time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	RateLimitPerMinute   int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"5"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"`
	DynamoDBEndpoint     string        `envconfig:"DYNAMODB_ENDPOINT" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GatewaySpec is one configured payment backend, first in the list is the
// default.
type GatewaySpec struct {
	Name     string
	Endpoint string
	APIKey   string
}

// ParseGateways reads PAYMENT_GATEWAYS, a comma-separated list of
// name=endpoint=apikey entries.
func (c *Config) ParseGateways() ([]GatewaySpec, error) {
	if strings.TrimSpace(c.PaymentGateways) == "" {
		return nil, nil
	}

	var specs []GatewaySpec
	for _, entry := range strings.Split(c.PaymentGateways, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid gateway entry %q, want name=endpoint=apikey", entry)
		}
		specs = append(specs, GatewaySpec{
			Name:     strings.TrimSpace(parts[0]),
			Endpoint: strings.TrimSpace(parts[1]),
			APIKey:   strings.TrimSpace(parts[2]),
		})
	}
	return specs, nil
}
