package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "GEMINI_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL.AsDuration())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
debug: true
llm:
  provider: openai
  model: gpt-4o
  api_key_env: OPENAI_API_KEY
session:
  backend: memory
  max_turns: 8
  ttl: 30m
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Session.MaxTurns)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL.AsDuration())
	// Omitted fields keep their defaults
	assert.Equal(t, "policy.json", cfg.PolicyPath)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  ttl: soon\n"), 0o600))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.Backend = "dynamo"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Session.Backend = "redis"
	assert.Error(t, cfg.Validate(), "redis backend without an address")

	cfg.Session.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("SHIELD_TEST_KEY", "secret-value")

	llm := LLMConfig{APIKeyEnv: "SHIELD_TEST_KEY"}
	assert.Equal(t, "secret-value", llm.APIKey())

	empty := LLMConfig{}
	assert.Empty(t, empty.APIKey())
}
