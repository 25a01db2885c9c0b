package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort string

	// Database configuration
	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	// Redis configuration (asynq queue + contact cache)
	RedisURL string

	// Fulfillment vendor API
	VendorBaseURL   string
	VendorAPIKey    string
	VendorSecretKey string
	VendorTimeout   time.Duration

	// Inbound payment webhook
	WebhookSecret     string
	WebhookAllowedIPs []string

	// Funding fee policy
	FundingFeePercent decimal.Decimal
	FundingFeeMin     decimal.Decimal
	FundingFeeMax     decimal.Decimal

	// Security settings
	InternalSecret string
	MaxRequestSize int64

	// Worker settings
	WorkerConcurrency int
	ReconcileAfter    time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

// Load reads configuration from the environment, with .env support for
// development.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg := &Config{
		// Server
		ServerPort: getEnv("VTU_SERVER_PORT", "8080"),

		// Database
		DatabaseURL: getEnv("VTU_DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("VTU_DB_MAX_CONNS", 25),
		DBMinConns:  getEnvInt("VTU_DB_MIN_CONNS", 5),

		// Redis
		RedisURL: getEnv("VTU_REDIS_URL", ""),

		// Vendor
		VendorBaseURL:   getEnv("VTU_VENDOR_BASE_URL", ""),
		VendorAPIKey:    getEnv("VTU_VENDOR_API_KEY", ""),
		VendorSecretKey: getEnv("VTU_VENDOR_SECRET_KEY", ""),
		VendorTimeout:   getEnvDuration("VTU_VENDOR_TIMEOUT", 45*time.Second),

		// Webhook
		WebhookSecret: getEnv("VTU_WEBHOOK_SECRET", ""),

		// Fees
		FundingFeePercent: getEnvDecimal("VTU_FUNDING_FEE_PERCENT", "1"),
		FundingFeeMin:     getEnvDecimal("VTU_FUNDING_FEE_MIN", "0"),
		FundingFeeMax:     getEnvDecimal("VTU_FUNDING_FEE_MAX", "0"),

		// Security
		InternalSecret: getEnv("VTU_INTERNAL_SECRET", ""),
		MaxRequestSize: getEnvInt64("VTU_MAX_REQUEST_SIZE", 1<<20), // 1MB

		// Worker
		WorkerConcurrency: getEnvInt("VTU_WORKER_CONCURRENCY", 10),
		ReconcileAfter:    getEnvDuration("VTU_RECONCILE_AFTER", 10*time.Minute),
		ReconcileInterval: getEnvDuration("VTU_RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileBatch:    getEnvInt("VTU_RECONCILE_BATCH", 50),
	}

	// Parse webhook source IP allowlist
	ipList := getEnv("VTU_WEBHOOK_IPS", "")
	if ipList != "" {
		cfg.WebhookAllowedIPs = strings.Split(ipList, ",")
		for i := range cfg.WebhookAllowedIPs {
			cfg.WebhookAllowedIPs[i] = strings.TrimSpace(cfg.WebhookAllowedIPs[i])
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("VTU_DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("VTU_REDIS_URL is required")
	}
	if c.InternalSecret == "" {
		return fmt.Errorf("VTU_INTERNAL_SECRET is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("VTU_WEBHOOK_SECRET is required")
	}
	if c.VendorBaseURL == "" {
		return fmt.Errorf("VTU_VENDOR_BASE_URL is required")
	}
	if c.VendorAPIKey == "" {
		return fmt.Errorf("VTU_VENDOR_API_KEY is required")
	}
	if c.VendorSecretKey == "" {
		return fmt.Errorf("VTU_VENDOR_SECRET_KEY is required")
	}
	if c.FundingFeePercent.IsNegative() {
		return fmt.Errorf("VTU_FUNDING_FEE_PERCENT must not be negative")
	}
	return nil
}

// LogSafeConfig logs configuration without secrets
func (c *Config) LogSafeConfig() {
	log.Info().
		Str("server_port", c.ServerPort).
		Str("database_url", maskConnectionString(c.DatabaseURL)).
		Str("redis_url", maskConnectionString(c.RedisURL)).
		Int("db_min_conns", c.DBMinConns).
		Int("db_max_conns", c.DBMaxConns).
		Str("vendor_base_url", c.VendorBaseURL).
		Str("funding_fee_percent", c.FundingFeePercent.String()).
		Strs("webhook_ips", c.WebhookAllowedIPs).
		Int("worker_concurrency", c.WorkerConcurrency).
		Dur("reconcile_after", c.ReconcileAfter).
		Msg("configuration loaded")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	value := getEnv(key, defaultValue)
	if d, err := decimal.NewFromString(value); err == nil {
		return d
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}

func maskConnectionString(connStr string) string {
	if strings.Contains(connStr, "@") {
		parts := strings.Split(connStr, "@")
		if len(parts) == 2 {
			return "***@" + parts[1]
		}
	}
	return "***"
}
