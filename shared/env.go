package shared

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds the settings the executables read before the config
// file is known.
type EnvConfig struct {
	ConfigFile string `env:"CHAT_CONFIG"`
}

// ParseEnv loads tagged fields of target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func LoadEnvConfig() (*EnvConfig, error) {
	cfg := new(EnvConfig)
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
