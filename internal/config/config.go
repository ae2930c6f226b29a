package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Port        string
	Environment string
	ServiceName string
	LogLevel    string
	DebugRoutes bool
	CORSOrigins []string

	Store StoreConfig
	Auth  AuthConfig

	WorkflowGRPCAddr string

	AMQPURL      string
	AMQPExchange string

	Redis RedisConfig

	OTLPEndpoint string
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver          string
	DSN             string
	ConnectAttempts int
}

// AuthConfig configures the identity collaborator. GRPCAddr wins over JWTSecret.
type AuthConfig struct {
	GRPCAddr  string
	JWTSecret string
}

// RedisConfig configures the offline inbox. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8083"),
		Environment: getEnv("ENVIRONMENT", "development"),
		ServiceName: getEnv("SERVICE_NAME", "messaging-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			DSN:    getEnv("DB_DSN", ""),
		},
		Auth: AuthConfig{
			GRPCAddr:  getEnv("AUTH_GRPC_ADDR", ""),
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		WorkflowGRPCAddr: getEnv("WORKFLOW_GRPC_ADDR", ""),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "chat.events"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if cfg.DebugRoutes, err = getBool("DEBUG_ROUTES", false); err != nil {
		return Config{}, err
	}
	if cfg.Store.ConnectAttempts, err = getInt("DB_CONNECT_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auth.GRPCAddr == "" && c.Auth.JWTSecret == "" {
		return errors.New("one of AUTH_GRPC_ADDR or AUTH_JWT_SECRET is required")
	}
	if c.Store.ConnectAttempts < 1 {
		return errors.New("DB_CONNECT_ATTEMPTS must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
