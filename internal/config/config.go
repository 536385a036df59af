package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Tickets  TicketConfig
	Payment  PaymentConfig
	Auth     AuthConfig
	Delivery DeliveryConfig
	LogLevel string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxWebhookBytes int64
}

type DatabaseConfig struct {
	Host           string
	Port           string
	Username       string
	Password       string
	Database       string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	ConnectRetries int
	AutoMigrate    bool
	MigrationsDir  string
}

type RedisConfig struct {
	Enabled        bool
	Addr           string
	DeviceCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketsIssued string
}

// TicketConfig holds the credential signing material.
type TicketConfig struct {
	Secret        string
	CredentialTTL time.Duration // zero means credentials carry no expiry
}

type PaymentConfig struct {
	Provider        string
	PublicKey       string
	IntegritySecret string
	EventsSecret    string
	RedirectURL     string
	Currency        string
	ReferencePrefix string
	ApprovedStatus  string
}

type AuthConfig struct {
	JWTSecret    string
	OIDCIssuer   string
	OIDCClientID string
}

// DeliveryConfig tunes the outbox relay. Backoff doubles per attempt up to MaxBackoff.
type DeliveryConfig struct {
	MaxAttempts  int
	Backoff      time.Duration
	MaxBackoff   time.Duration
	PollInterval time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
			MaxWebhookBytes: int64(getEnvInt("WEBHOOK_MAX_BYTES", 1<<20)),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			Username:       getEnv("DB_USERNAME", "tickets_user"),
			Password:       getEnv("DB_PASSWORD", "tickets_pass"),
			Database:       getEnv("DB_NAME", "cloudtickets"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:    time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectRetries: getEnvInt("DB_CONNECT_RETRIES", 5),
			AutoMigrate:    getEnvBool("DB_AUTO_MIGRATE", false),
			MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:        getEnvBool("REDIS_ENABLED", true),
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			DeviceCacheTTL: getEnvDuration("DEVICE_CACHE_TTL", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				TicketsIssued: getEnv("KAFKA_TOPIC_TICKETS_ISSUED", "cloudtickets.tickets.issued"),
			},
		},
		Tickets: TicketConfig{
			Secret:        os.Getenv("TICKET_SECRET"),
			CredentialTTL: getEnvDuration("TICKET_CREDENTIAL_TTL", 0),
		},
		Payment: PaymentConfig{
			Provider:        getEnv("PAYMENT_PROVIDER", "WOMPI"),
			PublicKey:       os.Getenv("WOMPI_PUBLIC_KEY"),
			IntegritySecret: os.Getenv("WOMPI_INTEGRITY_SECRET"),
			EventsSecret:    os.Getenv("WOMPI_EVENTS_SECRET"),
			RedirectURL:     os.Getenv("WOMPI_REDIRECT_URL"),
			Currency:        getEnv("PAYMENT_CURRENCY", "COP"),
			ReferencePrefix: getEnv("PAYMENT_REFERENCE_PREFIX", "CT"),
			ApprovedStatus:  getEnv("PAYMENT_APPROVED_STATUS", "APPROVED"),
		},
		Auth: AuthConfig{
			JWTSecret:    os.Getenv("JWT_SECRET"),
			OIDCIssuer:   os.Getenv("OIDC_ISSUER"),
			OIDCClientID: os.Getenv("OIDC_CLIENT_ID"),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:  getEnvInt("DELIVERY_MAX_ATTEMPTS", 5),
			Backoff:      getEnvDuration("DELIVERY_BACKOFF", 500*time.Millisecond),
			MaxBackoff:   getEnvDuration("DELIVERY_MAX_BACKOFF", 30*time.Second),
			PollInterval: getEnvDuration("DELIVERY_POLL_INTERVAL", time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

// Validate reports missing secrets the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Tickets.Secret == "" {
		errs = append(errs, errors.New("TICKET_SECRET is required"))
	}
	if c.Payment.EventsSecret == "" {
		errs = append(errs, errors.New("WOMPI_EVENTS_SECRET is required"))
	}
	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuer == "" {
		errs = append(errs, errors.New("JWT_SECRET or OIDC_ISSUER is required"))
	}
	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be positive, got %d", c.Delivery.MaxAttempts))
	}
	return errors.Join(errs...)
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
