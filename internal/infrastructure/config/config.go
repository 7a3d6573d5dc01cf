package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Policy   PolicyConfig
	Log      LogConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// CacheConfig configures the cache of parsed ad-hoc check strings
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 104857600 = 100MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cache entries in minutes
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Enabled  bool // stored policy overrides
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PolicyConfig configures the policy enforcer
type PolicyConfig struct {
	File         string // YAML or JSON overrides, optional
	EnforceScope bool
}

// LogConfig configures zap
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // rotated log file; stderr when empty
	// Rotation settings for File
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// ProjectRoot returns the directory holding go.mod
func ProjectRoot() (string, error) {
	return findProjectRoot()
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Outside a checkout (an installed CLI) only the environment applies
	if projectRoot, err := findProjectRoot(); err == nil {
		// Set config file name based on environment
		viper.SetConfigName(fmt.Sprintf(".env.%s", env))
		viper.SetConfigType("env")
		viper.AddConfigPath(projectRoot) // Project root

		// Read config file (optional, ignore error if not found)
		_ = viper.ReadInConfig()
	}

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8778)
	viper.SetDefault("METRICS_PORT", 9090)
	viper.SetDefault("DB_ENABLED", true)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "placement")
	viper.SetDefault("DB_NAME", "placement_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 10*1024*1024) // 10MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5) // 5 minutes TTL

	// Policy defaults
	viper.SetDefault("POLICY_FILE", "")
	viper.SetDefault("POLICY_ENFORCE_SCOPE", false)

	// Log defaults
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOG_FILE", "")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 5)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 28)

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// The override store is on unless explicitly disabled
	dbEnabled := !viper.IsSet("DB_ENABLED") || viper.GetBool("DB_ENABLED")

	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbEnabled && dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	logConfig, err := LoadLog()
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Database: DatabaseConfig{
			Enabled:  dbEnabled,
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Policy: PolicyConfig{
			File:         viper.GetString("POLICY_FILE"),
			EnforceScope: viper.GetBool("POLICY_ENFORCE_SCOPE"),
		},
		Log: logConfig,
	}

	return config, nil
}

// LoadLog loads only the LOG_* settings. Command-line tools use it since
// they need no database credentials.
func LoadLog() (LogConfig, error) {
	logFormat := strings.ToLower(viper.GetString("LOG_FORMAT"))
	if logFormat != "" && logFormat != "json" && logFormat != "console" {
		return LogConfig{}, fmt.Errorf("LOG_FORMAT must be json or console, got %q", logFormat)
	}

	return LogConfig{
		Level:      viper.GetString("LOG_LEVEL"),
		Format:     logFormat,
		File:       viper.GetString("LOG_FILE"),
		MaxSizeMB:  viper.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: viper.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: viper.GetInt("LOG_MAX_AGE_DAYS"),
	}, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
