package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the subway registry
type Config struct {
	// HTTP
	Port           string
	AllowedOrigins []string

	// Database. DatabaseURL selects Postgres; otherwise SQLite at DatabasePath.
	DatabasePath string
	DatabaseURL  string

	// Events
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	// Alerts feed
	ChangeLogLimit int
}

// Load reads .env files and then the environment. Malformed numbers are
// rejected rather than silently defaulted.
func Load() (*Config, error) {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		DatabasePath:      getEnv("SQLITE_DATABASE", "data/subway.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "subway"),
		LogNATSSubjects:   getEnvBool("LOG_NATS_SUBJECTS"),
	}

	limit, err := getEnvInt("CHANGE_LOG_LIMIT", 100)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("invalid CHANGE_LOG_LIMIT: %d", limit)
	}
	cfg.ChangeLogLimit = limit

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}

	return cfg, nil
}

// UsePostgres reports whether DATABASE_URL points at a Postgres cluster
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
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
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return intValue, nil
}

func getEnvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
