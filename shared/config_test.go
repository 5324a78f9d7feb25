package shared

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
name: alice
room: lobby
endpoint: http://chat.example.com:8080
polling: true
log:
  file: chat.log
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Name)
	assert.Equal(t, "lobby", cfg.Room)
	assert.Equal(t, "http://chat.example.com:8080", cfg.Endpoint)
	assert.True(t, cfg.Polling)
	assert.Equal(t, "chat.log", cfg.Log.File)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, DefaultLeaveTimeout, cfg.LeaveTimeout)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "name: alice\nroom: lobby\n")
	t.Setenv("CHAT_ROOM", "kitchen")
	t.Setenv("CHAT_LEAVE_TIMEOUT", "750ms")
	t.Setenv("CHAT_LOG_FILE", "/tmp/chat.log")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Name)
	assert.Equal(t, "kitchen", cfg.Room)
	assert.Equal(t, 750*time.Millisecond, cfg.LeaveTimeout)
	assert.Equal(t, "/tmp/chat.log", cfg.Log.File)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("CHAT_NAME", "bob")
	t.Setenv("CHAT_ROOM", "attic")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Name)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Name = "alice"
		cfg.Room = "lobby"
		return cfg
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing name", mutate: func(c *Config) { c.Name = "" }, wantErr: "Name"},
		{name: "missing room", mutate: func(c *Config) { c.Room = "" }, wantErr: "Room"},
		{name: "room too long", mutate: func(c *Config) { c.Room = strings.Repeat("r", 51) }, wantErr: "Room"},
		{name: "name at limit", mutate: func(c *Config) { c.Name = strings.Repeat("n", 50) }},
		{name: "websocket endpoint", mutate: func(c *Config) { c.Endpoint = "ws://localhost:5000" }, wantErr: "Endpoint"},
		{name: "relative namespace", mutate: func(c *Config) { c.Namespace = "chat" }, wantErr: "Namespace"},
		{name: "zero leave timeout", mutate: func(c *Config) { c.LeaveTimeout = 0 }, wantErr: "LeaveTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateNil(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrNoConfig)
}

func TestEndpointURL(t *testing.T) {
	cfg := DefaultConfig()
	u, err := cfg.EndpointURL()
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", u.Host)

	cfg.Endpoint = ""
	_, err = cfg.EndpointURL()
	assert.ErrorIs(t, err, ErrNoEndpoint)
}
