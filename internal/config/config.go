// Package config provides configuration management for the feedback bot.
// It loads configuration from environment variables with sensible defaults
// and validates it so the application refuses to start half-configured.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (falls back to FUNCTIONS_CUSTOMHANDLER_PORT, default: 7071)
//   - LOG_LEVEL: Logging level (default: info)
//   - HTTP_TIMEOUT: Timeout for outbound HTTP calls (default: 30s)
//   - CIRCUIT_BREAKER_ENABLED: Guard outbound calls with a circuit breaker (default: true)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: postgres when DATABASE_URL is set, sqlite otherwise)
//   - DATABASE_PATH: SQLite database file path (default: ./feedback_bot.db)
//   - DATABASE_URL: PostgreSQL connection string (required for postgres)
//   - DATABASE_MAX_CONNS: Maximum pooled PostgreSQL connections (default: 10)
//
// Redis Configuration (optional, enables cross-instance report locks):
//   - REDIS_ADDRESS: Redis server address
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REPORT_LOCK_TTL: Expiry of a per-card report lock (default: 30s)
//
// Rate limiting (shared through Redis when configured):
//   - RATE_LIMIT_ENABLED: Throttle inbound activities per caller (default: true)
//   - RATE_LIMIT_RPS: Sustained requests per second per caller (default: 20)
//   - RATE_LIMIT_BURST: Burst allowance per caller (default: 40)
//   - RATE_LIMIT_TRUST_PROXY: Key callers by X-Forwarded-For / X-Real-IP (default: false)
//
// Chat platform:
//   - TEAMS_CLIENT_ID, TEAMS_CLIENT_SECRET, TEAMS_TENANT_ID: bot registration (required)
//   - TEAMS_TOKEN_URL, TEAMS_SCOPE: bot connector token endpoint and scope
//   - TEAMS_SERVICE_URL: default connector base URL
//   - GRAPH_TOKEN_URL, GRAPH_SCOPE, GRAPH_BASE_URL: Graph API access
//   - CHAT_CACHE_TTL: How long chat topics are remembered (default: 10m)
//   - BOT_AUTH_ENABLED: Validate inbound bearer tokens (default: true)
//   - TEAMS_ALLOWED_SERVICE_HOSTS: Extra serviceUrl hosts accepted when auth is disabled (comma separated)
//   - BOT_OPENID_KEYS_URL, BOT_TOKEN_ISSUER: inbound token validation parameters
//
// Security:
//   - CONFIG_ENCRYPTION_KEY: Key protecting client secrets held in memory (32 characters if provided)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBotTokenURL     = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	DefaultBotScope        = "https://api.botframework.com/.default"
	DefaultServiceURL      = "https://smba.trafficmanager.net/teams"
	DefaultGraphScope      = "https://graph.microsoft.com/.default"
	DefaultGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	DefaultOpenIDKeysURL   = "https://login.botframework.com/v1/.well-known/keys"
	DefaultBotTokenIssuer  = "https://api.botframework.com"
	graphTokenURLForTenant = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

// Config holds all configuration values for the feedback bot.
type Config struct {
	Port                  string
	LogLevel              string
	HTTPTimeout           time.Duration
	CircuitBreakerEnabled bool

	DatabaseType     string
	DatabasePath     string
	DatabaseURL      string
	DatabaseMaxConns int

	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	ReportLockTTL time.Duration

	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
	TrustProxy       bool

	ClientID     string
	ClientSecret string
	TenantID     string
	BotTokenURL  string
	BotScope     string
	ServiceURL   string

	GraphTokenURL string
	GraphScope    string
	GraphBaseURL  string
	ChatCacheTTL  time.Duration

	AuthEnabled   bool
	ServiceHosts  []string
	OpenIDKeysURL string
	TokenIssuer   string

	EncryptionKey string
}

// Load creates a Config from environment variables. It does not validate;
// call Validate on the result.
func Load() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	defaultDBType := "sqlite"
	if databaseURL != "" {
		defaultDBType = "postgres"
	}

	tenantID := getEnv("TEAMS_TENANT_ID", "")

	return &Config{
		Port:                  getEnv("PORT", getEnv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HTTPTimeout:           getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		CircuitBreakerEnabled: getBoolEnv("CIRCUIT_BREAKER_ENABLED", true),

		DatabaseType:     strings.ToLower(getEnv("DATABASE_TYPE", defaultDBType)),
		DatabasePath:     getEnv("DATABASE_PATH", "./feedback_bot.db"),
		DatabaseURL:      databaseURL,
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		ReportLockTTL: getDurationEnv("REPORT_LOCK_TTL", 30*time.Second),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getIntEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 40),
		TrustProxy:       getBoolEnv("RATE_LIMIT_TRUST_PROXY", false),

		ClientID:     getEnv("TEAMS_CLIENT_ID", ""),
		ClientSecret: getEnv("TEAMS_CLIENT_SECRET", ""),
		TenantID:     tenantID,
		BotTokenURL:  getEnv("TEAMS_TOKEN_URL", DefaultBotTokenURL),
		BotScope:     getEnv("TEAMS_SCOPE", DefaultBotScope),
		ServiceURL:   getEnv("TEAMS_SERVICE_URL", DefaultServiceURL),

		GraphTokenURL: getEnv("GRAPH_TOKEN_URL", fmt.Sprintf(graphTokenURLForTenant, tenantID)),
		GraphScope:    getEnv("GRAPH_SCOPE", DefaultGraphScope),
		GraphBaseURL:  getEnv("GRAPH_BASE_URL", DefaultGraphBaseURL),
		ChatCacheTTL:  getDurationEnv("CHAT_CACHE_TTL", 10*time.Minute),

		AuthEnabled:   getBoolEnv("BOT_AUTH_ENABLED", true),
		ServiceHosts:  getListEnv("TEAMS_ALLOWED_SERVICE_HOSTS"),
		OpenIDKeysURL: getEnv("BOT_OPENID_KEYS_URL", DefaultOpenIDKeysURL),
		TokenIssuer:   getEnv("BOT_TOKEN_ISSUER", DefaultBotTokenIssuer),

		EncryptionKey: getEnv("CONFIG_ENCRYPTION_KEY", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping blanks
func getListEnv(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, strings.ToLower(v))
		}
	}
	return values
}

// getBoolEnv accepts anything strconv.ParseBool does; invalid values fall back to the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv returns -1 for unparsable values so Validate can report them.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return -1
		}
		return parsed
	}
	return defaultValue
}

// getDurationEnv returns 0 for unparsable values so Validate can report them.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0
		}
		return parsed
	}
	return defaultValue
}

// RedisEnabled reports whether a Redis server was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddress != ""
}

// AllowedServiceHosts lists the serviceUrl hosts replies may be sent to when
// inbound tokens are not validated: the configured connector host plus
// TEAMS_ALLOWED_SERVICE_HOSTS.
func (c *Config) AllowedServiceHosts() []string {
	hosts := append([]string(nil), c.ServiceHosts...)
	if parsed, err := url.Parse(c.ServiceURL); err == nil && parsed.Host != "" {
		hosts = append(hosts, strings.ToLower(parsed.Host))
	}
	return hosts
}

// Validate checks required fields, formats and cross-field dependencies.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be a positive duration (e.g., '30s')")
	}

	if c.ClientID == "" {
		return fmt.Errorf("TEAMS_CLIENT_ID environment variable is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("TEAMS_CLIENT_SECRET environment variable is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("TEAMS_TENANT_ID environment variable is required")
	}

	for name, raw := range map[string]string{
		"TEAMS_TOKEN_URL":   c.BotTokenURL,
		"TEAMS_SERVICE_URL": c.ServiceURL,
		"GRAPH_TOKEN_URL":   c.GraphTokenURL,
		"GRAPH_BASE_URL":    c.GraphBaseURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s is invalid: %w", name, err)
		}
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres", "postgresql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when using PostgreSQL")
		}
		if c.DatabaseMaxConns < 1 {
			return fmt.Errorf("DATABASE_MAX_CONNS must be a positive number")
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.RedisEnabled() {
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if c.ReportLockTTL <= 0 {
		return fmt.Errorf("REPORT_LOCK_TTL must be a positive duration (e.g., '30s')")
	}

	if c.ChatCacheTTL <= 0 {
		return fmt.Errorf("CHAT_CACHE_TTL must be a positive duration (e.g., '10m')")
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS < 1 {
			return fmt.Errorf("RATE_LIMIT_RPS must be a positive number")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be a positive number")
		}
	}

	if c.AuthEnabled {
		if err := validateURL(c.OpenIDKeysURL); err != nil {
			return fmt.Errorf("BOT_OPENID_KEYS_URL is invalid: %w", err)
		}
		if c.TokenIssuer == "" {
			return fmt.Errorf("BOT_TOKEN_ISSUER is required when BOT_AUTH_ENABLED is set")
		}
	}

	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("CONFIG_ENCRYPTION_KEY must be exactly 32 characters (256 bits) when provided")
	}

	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
