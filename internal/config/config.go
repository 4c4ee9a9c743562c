package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// defaultAPIURL mirrors client.DefaultBaseURL without importing the client.
const defaultAPIURL = "http://localhost:8080/users/"

// Config holds all application configuration.
type Config struct {
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	API      APIConfig
	Log      LogConfig
}

// HTTPConfig contains the users API listener settings.
type HTTPConfig struct {
	Address string // e.g. ":8080"
}

// GRPCConfig contains the health server settings.
type GRPCConfig struct {
	Address string // e.g. ":50051"
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// RedisConfig configures the search cache. An empty Addr disables it.
type RedisConfig struct {
	Addr string
	TTL  time.Duration
}

// APIConfig is what the command line client needs to reach the API.
type APIConfig struct {
	BaseURL     string
	Token       string
	RateLimit   float64 // requests per second, 0 = unlimited
	Burst       int
	Pushgateway string  // receives request metrics; empty disables them
}

// LogConfig selects the logrus level.
type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables (and a .env file when
// present) with sensible defaults. JWT_SECRET is mandatory.
func Load() (*Config, error) {
	cfg, err := load("")
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load("dev-secret-change-me")
}

func load(defaultSecret string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ttlHours, err := getEnvInt("TOKEN_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	cacheSeconds, err := getEnvInt("CACHE_TTL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt("USERS_RATE_BURST", 1)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvFloat("USERS_RATE_LIMIT", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTP: HTTPConfig{
			Address: getEnv("HTTP_ADDRESS", ":8080"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "app.db"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", defaultSecret),
			TokenTTL:  time.Duration(ttlHours) * time.Hour,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
			TTL:  time.Duration(cacheSeconds) * time.Second,
		},
		API: APIConfig{
			BaseURL:     getEnv("USERS_API_URL", defaultAPIURL),
			Token:       getEnv("USERS_TOKEN", ""),
			RateLimit:   rateLimit,
			Burst:       burst,
			Pushgateway: getEnv("USERS_PUSHGATEWAY", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	redis := "disabled"
	if c.Redis.Addr != "" {
		redis = c.Redis.Addr
	}
	return fmt.Sprintf("Config{HTTP: %s, gRPC: %s, DB: %s, Redis: %s, API: %s, Auth: *** (masked) ***}",
		c.HTTP.Address, c.GRPC.Address, c.Database.Path, redis, c.API.BaseURL)
}
