package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "FUNCTIONS_CUSTOMHANDLER_PORT", "LOG_LEVEL", "HTTP_TIMEOUT", "CIRCUIT_BREAKER_ENABLED",
	"DATABASE_TYPE", "DATABASE_PATH", "DATABASE_URL", "DATABASE_MAX_CONNS",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE", "REPORT_LOCK_TTL",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_TRUST_PROXY",
	"TEAMS_CLIENT_ID", "TEAMS_CLIENT_SECRET", "TEAMS_TENANT_ID", "TEAMS_TOKEN_URL", "TEAMS_SCOPE",
	"TEAMS_SERVICE_URL", "GRAPH_TOKEN_URL", "GRAPH_SCOPE", "GRAPH_BASE_URL", "CHAT_CACHE_TTL",
	"BOT_AUTH_ENABLED", "TEAMS_ALLOWED_SERVICE_HOSTS", "BOT_OPENID_KEYS_URL", "BOT_TOKEN_ISSUER", "CONFIG_ENCRYPTION_KEY",
}

// clearEnv blanks every key Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TEAMS_CLIENT_ID", "client-id")
	t.Setenv("TEAMS_CLIENT_SECRET", "client-secret")
	t.Setenv("TEAMS_TENANT_ID", "tenant-1")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "7071", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.CircuitBreakerEnabled)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./feedback_bot.db", cfg.DatabasePath)
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, 30*time.Second, cfg.ReportLockTTL)
	assert.True(t, cfg.RateLimitEnabled)
	assert.Equal(t, 20, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
	assert.Equal(t, DefaultBotTokenURL, cfg.BotTokenURL)
	assert.Equal(t, DefaultBotScope, cfg.BotScope)
	assert.Equal(t, DefaultServiceURL, cfg.ServiceURL)
	assert.Equal(t, DefaultGraphBaseURL, cfg.GraphBaseURL)
	assert.Equal(t, 10*time.Minute, cfg.ChatCacheTTL)
	assert.True(t, cfg.AuthEnabled)
	assert.False(t, cfg.TrustProxy)
	assert.Empty(t, cfg.ServiceHosts)
	assert.Equal(t, []string{"smba.trafficmanager.net"}, cfg.AllowedServiceHosts())
}

func TestAllowedServiceHosts(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEAMS_SERVICE_URL", "http://127.0.0.1:3978/")
	t.Setenv("TEAMS_ALLOWED_SERVICE_HOSTS", " SMBA.Infra.gov.teams.microsoft.us , ,emea.example.com")

	cfg := Load()

	assert.Equal(t, []string{"smba.infra.gov.teams.microsoft.us", "emea.example.com", "127.0.0.1:3978"},
		cfg.AllowedServiceHosts())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://localhost/feedback")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("REPORT_LOCK_TTL", "5s")
	t.Setenv("BOT_AUTH_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 5*time.Second, cfg.ReportLockTTL)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, "https://login.microsoftonline.com/tenant-1/oauth2/v2.0/token", cfg.GraphTokenURL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PortPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "9000")

	assert.Equal(t, "8081", Load().Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "valid sqlite",
			env:  map[string]string{},
		},
		{
			name:    "missing client id",
			env:     map[string]string{"TEAMS_CLIENT_ID": ""},
			wantErr: "TEAMS_CLIENT_ID",
		},
		{
			name:    "missing tenant",
			env:     map[string]string{"TEAMS_TENANT_ID": ""},
			wantErr: "TEAMS_TENANT_ID",
		},
		{
			name:    "invalid port",
			env:     map[string]string{"PORT": "70000"},
			wantErr: "PORT",
		},
		{
			name:    "unparsable timeout",
			env:     map[string]string{"HTTP_TIMEOUT": "soon"},
			wantErr: "HTTP_TIMEOUT",
		},
		{
			name:    "unknown database type",
			env:     map[string]string{"DATABASE_TYPE": "mysql"},
			wantErr: "DATABASE_TYPE",
		},
		{
			name:    "postgres without url",
			env:     map[string]string{"DATABASE_TYPE": "postgres"},
			wantErr: "DATABASE_URL",
		},
		{
			name:    "bad redis db",
			env:     map[string]string{"REDIS_ADDRESS": "localhost:6379", "REDIS_DB": "16"},
			wantErr: "REDIS_DB",
		},
		{
			name:    "bad rate limit",
			env:     map[string]string{"RATE_LIMIT_RPS": "fast"},
			wantErr: "RATE_LIMIT_RPS",
		},
		{
			name: "rate limit disabled ignores rate",
			env:  map[string]string{"RATE_LIMIT_ENABLED": "false", "RATE_LIMIT_RPS": "0"},
		},
		{
			name:    "bad service url",
			env:     map[string]string{"TEAMS_SERVICE_URL": "ftp://example.com"},
			wantErr: "TEAMS_SERVICE_URL",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"CONFIG_ENCRYPTION_KEY": "short"},
			wantErr: "CONFIG_ENCRYPTION_KEY",
		},
		{
			name: "valid encryption key",
			env:  map[string]string{"CONFIG_ENCRYPTION_KEY": "0123456789abcdef0123456789abcdef"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := Load().Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
