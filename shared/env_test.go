package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("CHAT_CONFIG", "/etc/chat.yaml")
	cfg, err := LoadEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, "/etc/chat.yaml", cfg.ConfigFile)

	t.Setenv("CHAT_CONFIG", "")
	cfg, err = LoadEnvConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigFile)
}

func TestParseEnv(t *testing.T) {
	var target struct {
		Wait  time.Duration `env:"CHAT_TEST_WAIT"`
		Count int           `env:"CHAT_TEST_COUNT"`
		Token string        `env:"CHAT_TEST_TOKEN,required"`
	}

	t.Setenv("CHAT_TEST_WAIT", "2s")
	t.Setenv("CHAT_TEST_COUNT", "twelve")
	t.Setenv("CHAT_TEST_TOKEN", "x")
	err := ParseEnv(&target)
	assert.ErrorContains(t, err, "parse env")
	assert.ErrorContains(t, err, `"Count"`)

	t.Setenv("CHAT_TEST_COUNT", "12")
	require.NoError(t, ParseEnv(&target))
	assert.Equal(t, 2*time.Second, target.Wait)
	assert.Equal(t, 12, target.Count)
}

func TestParseEnvRequired(t *testing.T) {
	var target struct {
		Token string `env:"CHAT_TEST_MISSING_TOKEN,required"`
	}
	assert.ErrorContains(t, ParseEnv(&target), "CHAT_TEST_MISSING_TOKEN")
}
