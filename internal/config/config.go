package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Client
	APIURL            string
	Token             string
	TokenFile         string
	RequestTimeout    time.Duration
	BestEffortTimeout time.Duration
	DefaultTimeLimit  time.Duration
	MaxWarnings       int

	LogLevel  string
	LogFormat string
	LogFile   string

	// Sandbox backend
	ServerPort string
	GinMode    string
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int
	// RedisURL selects the redis attempt store. Empty means in-memory.
	RedisURL       string
	FixturePath    string
	AllowedOrigins []string
	BrotliQuality  int
	LoginRateLimit int // requests per minute per IP
	ExpiryInterval time.Duration
	ExpiryGrace    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIURL:            strings.TrimRight(getEnv("APTIQ_API_URL", "http://localhost:8080"), "/"),
		Token:             getEnv("APTIQ_TOKEN", ""),
		TokenFile:         getEnv("APTIQ_TOKEN_FILE", defaultTokenFile()),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		BestEffortTimeout: time.Duration(getEnvInt("BEST_EFFORT_TIMEOUT_SECONDS", 5)) * time.Second,
		DefaultTimeLimit:  time.Duration(getEnvInt("DEFAULT_TIME_LIMIT_MINUTES", 5)) * time.Minute,
		MaxWarnings:       getEnvInt("MAX_WARNINGS", 3),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		LogFile:           getEnv("LOG_FILE", ""),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		JWTSecret:         getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		BcryptCost:        getEnvInt("BCRYPT_COST", 6),
		RedisURL:          getEnv("REDIS_URL", ""),
		FixturePath:       getEnv("SANDBOX_FIXTURE", "./sandbox.yaml"),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		BrotliQuality:     getEnvInt("BROTLI_QUALITY", 5),
		LoginRateLimit:    getEnvInt("LOGIN_RATE_PER_MINUTE", 30),
		ExpiryInterval:    time.Duration(getEnvInt("EXPIRY_INTERVAL_SECONDS", 15)) * time.Second,
		ExpiryGrace:       time.Duration(getEnvInt("EXPIRY_GRACE_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// defaultTokenFile places the token next to the user's other config files.
func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".aptiq_token"
	}
	return filepath.Join(dir, "aptiq", "token")
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
