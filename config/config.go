package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional. When nil, generation records are kept in memory.
	Providers     ProvidersConfig
	Routing       RoutingConfig
	Generation    GenerationConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds generation provider configurations
type ProvidersConfig struct {
	OpenAI     ProviderConfig
	ElevenLabs ProviderConfig
}

// ProviderConfig holds one provider's credentials and client limits.
// A provider without an API key is not registered.
type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Enabled reports whether the provider has credentials
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// RoutingConfig holds dispatcher defaults
type RoutingConfig struct {
	MaxRetries  int
	BackoffUnit time.Duration
	DefaultMode string
	PolicyFile  string // Optional YAML provider policy; empty uses the built-in table
}

// GenerationConfig holds async generation settings
type GenerationConfig struct {
	AsyncWorkers int
	QueueSize    int
	Timeout      time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel         string
	LogFormat        string // json or console
	MetricsEnabled   bool
	MetricsNamespace string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:            getEnv("OPENAI_API_KEY", ""),
				BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:           getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				RequestsPerSecond: getEnvAsFloat("OPENAI_RPS", 0),
			},
			ElevenLabs: ProviderConfig{
				APIKey:            getEnv("ELEVENLABS_API_KEY", ""),
				BaseURL:           getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
				Timeout:           getEnvAsDuration("ELEVENLABS_TIMEOUT", 60*time.Second),
				RequestsPerSecond: getEnvAsFloat("ELEVENLABS_RPS", 0),
			},
		},
		Routing: RoutingConfig{
			MaxRetries:  getEnvAsInt("ROUTING_MAX_RETRIES", 3),
			BackoffUnit: getEnvAsDuration("ROUTING_BACKOFF_UNIT", time.Second),
			DefaultMode: getEnv("ROUTING_DEFAULT_MODE", "sequential"),
			PolicyFile:  getEnv("ROUTING_POLICY_FILE", ""),
		},
		Generation: GenerationConfig{
			AsyncWorkers: getEnvAsInt("GENERATION_ASYNC_WORKERS", 4),
			QueueSize:    getEnvAsInt("GENERATION_QUEUE_SIZE", 100),
			Timeout:      getEnvAsDuration("GENERATION_TIMEOUT", 5*time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", "orchestrator"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", c.Server.Port)
	}

	// Database is optional, but a partial DB_* configuration is a mistake
	if db := c.Database; db != nil && db.ConnectionString == "" {
		if db.User == "" {
			return fmt.Errorf("database user is required")
		}
		if db.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Routing validation
	if c.Routing.MaxRetries < 1 {
		return fmt.Errorf("routing max retries must be at least 1")
	}
	if c.Routing.BackoffUnit <= 0 {
		return fmt.Errorf("routing backoff unit must be positive")
	}
	switch strings.ToLower(c.Routing.DefaultMode) {
	case "sequential", "failover", "parallel", "race":
	default:
		return fmt.Errorf("unknown routing mode %q", c.Routing.DefaultMode)
	}

	// Generation validation
	if c.Generation.AsyncWorkers < 1 {
		return fmt.Errorf("generation async workers must be at least 1")
	}
	if c.Generation.QueueSize < 1 {
		return fmt.Errorf("generation queue size must be at least 1")
	}

	// Provider validation (at least one provider API key required in production)
	if c.IsProduction() && !c.Providers.OpenAI.Enabled() && !c.Providers.ElevenLabs.Enabled() {
		return fmt.Errorf("at least one generation provider must be configured in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := func(cfg *DatabaseConfig) *DatabaseConfig {
		cfg.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", 25)
		cfg.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", 5)
		cfg.ConnMaxLifetime = getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
		return cfg
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return pool(&DatabaseConfig{ConnectionString: dbURL})
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return pool(&DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "orchestrator"),
		Password: getEnv("DB_PASSWORD", ""),
		Database: getEnv("DB_NAME", "generations"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	})
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
