package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from the process environment using its `env` and
// `envDefault` struct tags. Slices split on commas.
func Load(cfg any) error {
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFrom fills cfg from the given key/value map instead of the process
// environment. Useful for embedding the storefront in another process.
func LoadFrom(cfg any, vars map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
