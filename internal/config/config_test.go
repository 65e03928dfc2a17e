package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javelinlabs/mcp-validation-gateway/internal/config"
)

func validConfig() *config.Config {
	c := config.Load()
	c.GuardAPIKey = "test-api-key-123"
	return c
}

func TestValidate_OK(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Validate())
}

func TestValidate_EmptyAPIKey(t *testing.T) {
	c := validConfig()
	c.GuardAPIKey = ""
	assert.Error(t, c.Validate())
}

func TestValidate_ShortAPIKey(t *testing.T) {
	c := validConfig()
	c.GuardAPIKey = "short"
	assert.Error(t, c.Validate())
}

func TestValidate_APIKeyWithWhitespace(t *testing.T) {
	c := validConfig()
	c.GuardAPIKey = "has a space in it"
	assert.Error(t, c.Validate())
}

func TestValidate_ZeroTimeout(t *testing.T) {
	c := validConfig()
	c.GuardTimeoutSeconds = 0
	assert.Error(t, c.Validate())
}

func TestValidate_InvalidListenAddress(t *testing.T) {
	c := validConfig()
	c.ListenAddress = "not-an-address"
	assert.Error(t, c.Validate())
}

func TestValidate_ZeroMaxRequestSize(t *testing.T) {
	c := validConfig()
	c.MaxRequestSize = 0
	assert.Error(t, c.Validate())
}

func TestGuardTimeout(t *testing.T) {
	c := validConfig()
	c.GuardTimeoutSeconds = 15
	assert.Equal(t, 15, int(c.GuardTimeout().Seconds()))
}
