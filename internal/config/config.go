package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (tokens are issued by the auth service, validated here)
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Scan pipeline configuration
	Scan ScanConfig

	// Medical clearance (MCU) gating
	Medical MedicalConfig

	// Redis configuration (optional, enables the cross-instance scan lock)
	Redis RedisConfig

	// Live dashboard channel configuration
	Live LiveConfig

	// Scheduled jobs
	Cron CronConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	TimeZone    string // IANA zone used for "today" boundaries
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// ScanConfig bounds the scan request path
type ScanConfig struct {
	Timeout          time.Duration // resolve + record budget for one scan
	LockTTL          time.Duration // expiry of the distributed per-person lock
	LocationCacheTTL time.Duration // how long the location tree is served from memory
}

// MedicalConfig mirrors the MCU settings owned by the settings screen
type MedicalConfig struct {
	FeatureActive   bool
	ValidityDays    int
	DenyOnViolation bool
	ExpiredMessage  string
	UnfitMessage    string
	DeniedMessage   string
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LiveConfig tunes the websocket hub
type LiveConfig struct {
	SendBuffer int
	PingPeriod time.Duration
}

// CronConfig toggles scheduled jobs
type CronConfig struct {
	Enabled            bool
	AuditRetentionDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "5000"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			TimeZone:    getEnv("TIMEZONE", "Local"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Scan: ScanConfig{
			Timeout:          time.Duration(getEnvAsInt("SCAN_TIMEOUT_MS", 5000)) * time.Millisecond,
			LockTTL:          time.Duration(getEnvAsInt("SCAN_LOCK_TTL_MS", 10000)) * time.Millisecond,
			LocationCacheTTL: time.Duration(getEnvAsInt("LOCATION_CACHE_TTL_SECONDS", 30)) * time.Second,
		},
		Medical: MedicalConfig{
			FeatureActive:   getEnvAsBool("MCU_FEATURE_ACTIVE", false),
			ValidityDays:    getEnvAsInt("MCU_VALIDITY_DAYS", 365),
			DenyOnViolation: getEnvAsBool("MCU_DENY_ON_VIOLATION", false),
			ExpiredMessage:  getEnv("MCU_EXPIRED_MESSAGE", "MCU EXPIRED"),
			UnfitMessage:    getEnv("MCU_UNFIT_WARNING_MESSAGE", "MCU UNFIT"),
			DeniedMessage:   getEnv("MCU_DENIED_MESSAGE", "ACCESS DENIED: MEDICAL CLEARANCE"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Live: LiveConfig{
			SendBuffer: getEnvAsInt("LIVE_SEND_BUFFER", 64),
			PingPeriod: time.Duration(getEnvAsInt("LIVE_PING_PERIOD_SECONDS", 54)) * time.Second,
		},
		Cron: CronConfig{
			Enabled:            getEnvAsBool("CRON_ENABLED", true),
			AuditRetentionDays: getEnvAsInt("AUDIT_RETENTION_DAYS", 90),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Server.TimeZone, err)
	}

	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("SCAN_TIMEOUT_MS must be positive")
	}

	if c.Medical.FeatureActive && c.Medical.ValidityDays <= 0 {
		return fmt.Errorf("MCU_VALIDITY_DAYS must be positive when MCU_FEATURE_ACTIVE is set")
	}

	return nil
}

// Location resolves the configured time zone
func (c *Config) Location() (*time.Location, error) {
	if c.Server.TimeZone == "" || c.Server.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Server.TimeZone)
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
