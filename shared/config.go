package shared

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

const (
	DefaultEndpoint         = "http://localhost:5000"
	DefaultNamespace        = "/chat"
	DefaultEnginePath       = "/socket.io/"
	DefaultLeaveTimeout     = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

type LogConfig struct {
	File       string `yaml:"file"        env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS" validate:"gte=0"`
	Compress   bool   `yaml:"compress"    env:"COMPRESS"`
}

// Config describes one chat participant and the server it talks to.
// Name and room follow the limits of the server's login form.
type Config struct {
	Name             string        `yaml:"name"              env:"CHAT_NAME"              validate:"required,min=1,max=50"`
	Room             string        `yaml:"room"              env:"CHAT_ROOM"              validate:"required,min=1,max=50"`
	Endpoint         string        `yaml:"endpoint"          env:"CHAT_ENDPOINT"          validate:"required,url,startswith=http"`
	Namespace        string        `yaml:"namespace"         env:"CHAT_NAMESPACE"         validate:"required,startswith=/"`
	EnginePath       string        `yaml:"engine_path"       env:"CHAT_ENGINE_PATH"       validate:"required,startswith=/"`
	LeaveTimeout     time.Duration `yaml:"leave_timeout"     env:"CHAT_LEAVE_TIMEOUT"     validate:"gt=0"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"CHAT_HANDSHAKE_TIMEOUT" validate:"gt=0"`
	Polling          bool          `yaml:"polling"           env:"CHAT_POLLING"`
	Login            bool          `yaml:"login"             env:"CHAT_LOGIN"`
	Log              LogConfig     `yaml:"log"               envPrefix:"CHAT_LOG_"`
}

func DefaultConfig() *Config {
	return &Config{
		Endpoint:         DefaultEndpoint,
		Namespace:        DefaultNamespace,
		EnginePath:       DefaultEnginePath,
		LeaveTimeout:     DefaultLeaveTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 3,
		},
	}
}

// LoadConfig layers defaults, the optional YAML file at path and CHAT_*
// environment variables, in that order, then validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decoding config file: %w", err)
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if c == nil {
		return ErrNoConfig
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config field %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func (c *Config) EndpointURL() (*url.URL, error) {
	if c.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	return u, nil
}
