package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// parseEnv overlays environment variables onto cfg. All variables share the
// AUTHD_ prefix, with nested sections adding their own (for example
// AUTHD_SESSION_LIFETIME or AUTHD_SECURITY_AES_KEY).
func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}
