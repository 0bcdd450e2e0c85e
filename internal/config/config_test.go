package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:           "8375",
		Env:            "development",
		JWTSecret:      "test-secret-key-12345678901234567890123456789012",
		TokenTTL:       10 * time.Minute,
		OTPTTL:         5 * time.Minute,
		OTPMaxAttempts: 5,
		DBDriver:       "sqlite",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "test-secret-key-12345678901234567890123456789012")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8375", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, "atrium-api", cfg.JWTIssuer)
	assert.Equal(t, "postgres", cfg.DBDriver)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("TOKEN_TTL", "2m")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.OTPMaxAttempts)
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Port = "" }, wantErr: "PORT is required"},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "JWT_SECRET is required"},
		{name: "zero token ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, wantErr: "TOKEN_TTL"},
		{name: "zero otp attempts", mutate: func(c *Config) { c.OTPMaxAttempts = 0 }, wantErr: "OTP_MAX_ATTEMPTS"},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, wantErr: "DB_DRIVER"},
		{
			name: "production default secret",
			mutate: func(c *Config) {
				c.Env = "production"
				c.JWTSecret = defaultJWTSecret
			},
			wantErr: "must be changed",
		},
		{
			name: "production without gateway",
			mutate: func(c *Config) {
				c.Env = "production"
				c.DBPassword = "a-strong-password"
			},
			wantErr: "SMS_GATEWAY_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
