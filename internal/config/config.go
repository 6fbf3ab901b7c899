package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string
	DBMaxConns  int32

	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// Business calendar; "today" and the refresh schedule are read in this zone
	Timezone string
	Location *time.Location

	// Debt status refresh job
	DebtStatus DebtStatusConfig

	// Requests per minute per client on the manual job trigger
	OpsRateLimitPerMinute int
}

// DebtStatusConfig holds the refresh job schedule
type DebtStatusConfig struct {
	Cron       string
	RunOnStart bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:         getEnv("ENV", "development"),
		Timezone:    getEnv("TIMEZONE", "Asia/Ho_Chi_Minh"),
		DebtStatus: DebtStatusConfig{
			Cron: getEnv("DEBT_STATUS_CRON", "0 1 * * *"),
		},
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	cfg.DBMaxConns = int32(maxConns)

	if cfg.OpsRateLimitPerMinute, err = getEnvInt("OPS_RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.DebtStatus.RunOnStart, err = getEnvBool("DEBT_STATUS_RUN_ON_START", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if c.OpsRateLimitPerMinute < 1 {
		return fmt.Errorf("OPS_RATE_LIMIT_PER_MINUTE must be at least 1")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	if _, err := cron.ParseStandard(c.DebtStatus.Cron); err != nil {
		return fmt.Errorf("invalid DEBT_STATUS_CRON %q: %w", c.DebtStatus.Cron, err)
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
