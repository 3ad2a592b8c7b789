package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Location delete policies.
const (
	DeletePolicyReject  = "reject"
	DeletePolicyOrphan  = "orphan"
	DeletePolicyCascade = "cascade"
)

type Config struct {
	Environment string
	ListenAddr  string

	DBDriver   string
	DBDSN      string
	DBMaxConns int

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration

	LogLevel  string
	LogFormat string

	EnableMetrics bool

	DefaultPageSize     int
	MaxPageSize         int
	DefaultStatusFilter string
	RecentActivityLimit int
	WarrantyWindow      time.Duration

	LocationDeletePolicy string
	RequireItemLocation  bool

	ImportMapping  string
	ImportMaxBytes int64
}

func Load() *Config {
	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),

		DBDriver:   getEnv("DB_DRIVER", "pgx"),
		DBDSN:      os.Getenv("DB_DSN"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 10),

		JWTSecret:   getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:   getEnv("JWT_ISS", "it-inventory-api"),
		JWTAudience: getEnv("JWT_AUD", "it-inventory-api"),
		JWTExpiry:   24 * time.Hour, // Default to 24 hours

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		EnableMetrics: os.Getenv("ENABLE_METRICS") == "true",

		DefaultPageSize:     getEnvInt("DEFAULT_PAGE_SIZE", 25),
		MaxPageSize:         getEnvInt("MAX_PAGE_SIZE", 200),
		DefaultStatusFilter: getEnv("DEFAULT_STATUS_FILTER", "active"),
		RecentActivityLimit: getEnvInt("RECENT_ACTIVITY_LIMIT", 50),
		WarrantyWindow:      time.Duration(getEnvInt("WARRANTY_WINDOW_DAYS", 30)) * 24 * time.Hour,

		LocationDeletePolicy: strings.ToLower(getEnv("LOCATION_DELETE_POLICY", DeletePolicyReject)),
		RequireItemLocation:  os.Getenv("REQUIRE_ITEM_LOCATION") == "true",

		ImportMapping:  getEnv("IMPORT_MAPPING", "configs/mapping/inventory.yaml"),
		ImportMaxBytes: int64(getEnvInt("IMPORT_MAX_BYTES", 20<<20)),
	}

	// Parse JWT expiry from environment if provided
	if expiryStr := os.Getenv("JWT_EXPIRY"); expiryStr != "" {
		if expiry, err := time.ParseDuration(expiryStr); err == nil {
			config.JWTExpiry = expiry
		}
	}

	return config
}

// Validate checks token settings and the inventory policies.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed in production")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT_ISS is required")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT_AUD is required")
	}
	if c.JWTExpiry < time.Minute {
		return fmt.Errorf("JWT_EXPIRY must be at least 1m, got %v", c.JWTExpiry)
	}
	if c.JWTExpiry > 30*24*time.Hour {
		return fmt.Errorf("JWT_EXPIRY must be at most 720h, got %v", c.JWTExpiry)
	}

	switch c.DBDriver {
	case "", "pgx", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be pgx or sqlite, got %q", c.DBDriver)
	}

	switch c.LocationDeletePolicy {
	case "", DeletePolicyReject, DeletePolicyCascade:
	case DeletePolicyOrphan:
		if c.RequireItemLocation {
			return errors.New("LOCATION_DELETE_POLICY=orphan conflicts with REQUIRE_ITEM_LOCATION=true")
		}
	default:
		return fmt.Errorf("LOCATION_DELETE_POLICY must be reject, orphan or cascade, got %q", c.LocationDeletePolicy)
	}

	if c.DefaultPageSize <= 0 || c.MaxPageSize <= 0 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.RecentActivityLimit <= 0 {
		return errors.New("RECENT_ACTIVITY_LIMIT must be positive")
	}
	return nil
}

// LoadAndValidate loads the configuration from the environment and validates it.
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
