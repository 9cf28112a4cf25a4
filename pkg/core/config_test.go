package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	config := DefaultConfig("io")
	require.NoError(t, config.Validate())
	assert.Equal(t, "io", config.Domain)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing domain", func(c *Config) { c.Domain = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimitRequests = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"breaker without threshold", func(c *Config) { c.CircuitBreakerFailThreshold = 0 }},
		{"breaker without timeout", func(c *Config) { c.CircuitBreakerTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig("io")
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestConfig_RequireCredentials(t *testing.T) {
	config := DefaultConfig("io")
	err := config.RequireCredentials()
	assert.True(t, IsConfigurationError(err))

	config.WithCredentials(&Credentials{APIKey: "key"})
	assert.Error(t, config.RequireCredentials())

	config.WithCredentials(&Credentials{APIKey: "key", SecretKey: "secret"})
	assert.NoError(t, config.RequireCredentials())
}

func TestConfig_Chaining(t *testing.T) {
	config := DefaultConfig("net").
		WithTimeout(5 * time.Second).
		WithRateLimit(100, time.Second)

	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Equal(t, 100, config.RateLimitRequests)
	assert.Equal(t, time.Second, config.RateLimitPeriod)
	require.NoError(t, config.Validate())
}
