package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	// YClients backend
	YClientsBaseURL     string
	YClientsBearerToken string
	YClientsCompanyID   int
	YClientsTimeout     time.Duration

	// Protocol server
	Transport          string
	Port               string
	ServerName         string
	ServerVersion      string
	CORSAllowedOrigins []string
	RateLimitPerMinute int

	// Redis-backed rate limiting (optional, in-memory when RedisAddr is empty)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Scheduling behaviour
	SalonTimezone     string
	SearchConcurrency int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		YClientsBaseURL:     getEnv("YCLIENTS_BASE_URL", "https://api.yclients.com/api/v1"),
		YClientsBearerToken: getEnv("YCLIENTS_BEARER_TOKEN", ""),
		YClientsCompanyID:   getEnvAsInt("YCLIENTS_COMPANY_ID", 0),
		YClientsTimeout:     getEnvAsDuration("YCLIENTS_TIMEOUT", 30*time.Second),

		Transport:          strings.ToLower(strings.TrimSpace(getEnv("MCP_TRANSPORT", TransportStdio))),
		Port:               getEnv("PORT", getEnv("MCP_PORT", "3000")),
		ServerName:         getEnv("MCP_SERVER_NAME", "yclients-booking"),
		ServerVersion:      getEnv("MCP_SERVER_VERSION", "1.0.0"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SalonTimezone:     getEnv("SALON_TIMEZONE", ""),
		SearchConcurrency: getEnvAsInt("AVAILABILITY_SEARCH_CONCURRENCY", 1),
	}
}

// Validate reports the first missing or malformed required setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.YClientsBearerToken) == "" {
		return errors.New("YCLIENTS_BEARER_TOKEN is not set")
	}
	if c.YClientsCompanyID <= 0 {
		return errors.New("YCLIENTS_COMPANY_ID is not set")
	}
	switch c.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT %q", c.Transport)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves SalonTimezone; an empty value means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.SalonTimezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.SalonTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SALON_TIMEZONE %q: %w", c.SalonTimezone, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
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
