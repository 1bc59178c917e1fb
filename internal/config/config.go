// Package config loads claimsync configuration from the environment.
// For local development, variables may be seeded from .env files loaded via
// godotenv; deployed environments supply real environment variables.
package config

import "fmt"

// Load reads .env files (if present), parses the environment into a Config
// and validates it.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg, err := parse()
	if err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
