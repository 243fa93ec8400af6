package openstore

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds the environment-driven settings for the discovery client.
type Config struct {
	// RegistryURL is the base URL of the open-store registry used for
	// service discovery.
	RegistryURL string `env:"OPENSTORE_REGISTRY_URL,required"`

	// RequestTimeout bounds every individual HTTP request to a store
	// service or the registry.
	RequestTimeout time.Duration `env:"OPENSTORE_REQUEST_TIMEOUT,default=15s"`

	// ValidateResponses enables JSON-schema validation of store responses.
	ValidateResponses bool `env:"OPENSTORE_VALIDATE_RESPONSES,default=true"`
}

// ConfigFromEnv loads the configuration from the environment, with a .env
// file honored when present.
func ConfigFromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("openstore: failed to decode config from env: %w", err)
	}
	return cfg, nil
}
