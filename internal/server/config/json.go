package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// configFileEnv names the environment variable holding the path to an
// optional JSON config file.
const configFileEnv = "AUTHD_CONFIG"

// parseJSON overlays values from the JSON file named by AUTHD_CONFIG, if
// any. A missing variable is not an error; a named but unreadable or
// malformed file is.
func parseJSON(cfg *Config) error {
	path := os.Getenv(configFileEnv)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}
