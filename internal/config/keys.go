package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey indicates no Anthropic API key is configured anywhere.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// GetAPIKey resolves the Anthropic API key. The environment variable
// wins over the config file value; ${VAR} references in the config
// value are expanded, and a reference to an unset variable counts as
// no key at all.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if cfg != nil {
		if key := os.ExpandEnv(cfg.Anthropic.APIKey); key != "" {
			return key, nil
		}
	}
	return "", ErrNoAPIKey
}

// ValidateAPIKey checks the shape of a key without calling the API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		return fmt.Errorf("invalid API key: expected sk-ant- prefix")
	}
	if len(key) < 20 {
		return fmt.Errorf("invalid API key: too short")
	}
	return nil
}

// MaskAPIKey renders a key for display without exposing it: the
// sk-ant- prefix and the last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
