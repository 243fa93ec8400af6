package openstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OPENSTORE_REGISTRY_URL", "http://registry.example")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://registry.example", cfg.RegistryURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.ValidateResponses)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("OPENSTORE_REGISTRY_URL", "http://registry.example")
	t.Setenv("OPENSTORE_REQUEST_TIMEOUT", "3s")
	t.Setenv("OPENSTORE_VALIDATE_RESPONSES", "false")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.ValidateResponses)
}

func TestConfigFromEnvRequiresRegistryURL(t *testing.T) {
	t.Setenv("OPENSTORE_REGISTRY_URL", "")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}
