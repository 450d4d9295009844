// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Search backends accepted by SEARCH_BACKEND.
const (
	SearchBackendMemory  = "memory"
	SearchBackendElastic = "elastic"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBReadHost     string `mapstructure:"DB_READ_HOST"`
	DBReadPort     string `mapstructure:"DB_READ_PORT"`
	DBReadUser     string `mapstructure:"DB_READ_USER"`
	DBReadPassword string `mapstructure:"DB_READ_PASSWORD"`
	DBSchemaMode   string `mapstructure:"DB_SCHEMA_MODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`

	SearchBackend    string `mapstructure:"SEARCH_BACKEND"`
	ElasticsearchURL string `mapstructure:"ELASTICSEARCH_URL"`
	SearchIndex      string `mapstructure:"SEARCH_INDEX"`

	SyncWorkers          int           `mapstructure:"SYNC_WORKERS"`
	SyncQueueSize        int           `mapstructure:"SYNC_QUEUE_SIZE"`
	SyncMaxAttempts      int           `mapstructure:"SYNC_MAX_ATTEMPTS"`
	SyncAttemptTimeout   time.Duration `mapstructure:"SYNC_ATTEMPT_TIMEOUT"`
	SyncInitialBackoff   time.Duration `mapstructure:"SYNC_INITIAL_BACKOFF"`
	SyncMaxBackoff       time.Duration `mapstructure:"SYNC_MAX_BACKOFF"`
	SyncVersionCacheSize int           `mapstructure:"SYNC_VERSION_CACHE_SIZE"`
	ReconcileInterval    time.Duration `mapstructure:"RECONCILE_INTERVAL"`

	ViewTimeout        time.Duration `mapstructure:"VIEW_TIMEOUT"`
	VisitRetentionDays int           `mapstructure:"VISIT_RETENTION_DAYS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	// The base file is optional; env vars and defaults cover everything.
	_ = v.ReadInConfig()

	env := v.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		v.SetConfigName("config." + env)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.SearchBackend = strings.ToLower(strings.TrimSpace(config.SearchBackend))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8375")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "lumen")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_READ_HOST", "")
	v.SetDefault("DB_READ_PORT", "5432")
	v.SetDefault("DB_READ_USER", "user")
	v.SetDefault("DB_READ_PASSWORD", "password")
	v.SetDefault("DB_SCHEMA_MODE", "hybrid")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("FEATURE_FLAGS", "search_fuzzy=on,daily_visits=on")

	v.SetDefault("SEARCH_BACKEND", SearchBackendMemory)
	v.SetDefault("ELASTICSEARCH_URL", "http://localhost:9200")
	v.SetDefault("SEARCH_INDEX", "lumen_posts")

	v.SetDefault("SYNC_WORKERS", 4)
	v.SetDefault("SYNC_QUEUE_SIZE", 1024)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 5)
	v.SetDefault("SYNC_ATTEMPT_TIMEOUT", "3s")
	v.SetDefault("SYNC_INITIAL_BACKOFF", "200ms")
	v.SetDefault("SYNC_MAX_BACKOFF", "5s")
	v.SetDefault("SYNC_VERSION_CACHE_SIZE", 10000)
	v.SetDefault("RECONCILE_INTERVAL", "15m")

	v.SetDefault("VIEW_TIMEOUT", "250ms")
	v.SetDefault("VISIT_RETENTION_DAYS", 30)

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.SearchBackend {
	case SearchBackendMemory:
	case SearchBackendElastic:
		if c.ElasticsearchURL == "" {
			return errors.New("ELASTICSEARCH_URL is required when SEARCH_BACKEND=elastic")
		}
	default:
		return fmt.Errorf("unsupported SEARCH_BACKEND %q", c.SearchBackend)
	}
	if c.SearchIndex == "" {
		return errors.New("SEARCH_INDEX is required")
	}

	if c.SyncWorkers < 1 {
		return errors.New("SYNC_WORKERS must be at least 1")
	}
	if c.SyncQueueSize < 1 {
		return errors.New("SYNC_QUEUE_SIZE must be at least 1")
	}
	if c.SyncMaxAttempts < 1 {
		return errors.New("SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if c.SyncAttemptTimeout <= 0 {
		return errors.New("SYNC_ATTEMPT_TIMEOUT must be positive")
	}
	if c.VisitRetentionDays < 1 {
		return errors.New("VISIT_RETENTION_DAYS must be at least 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.SearchBackend == SearchBackendMemory {
			log.Println("WARNING: SEARCH_BACKEND=memory in production; the index is lost on restart and rebuilt by the reconciler.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
