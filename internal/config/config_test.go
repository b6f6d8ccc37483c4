package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, values map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper(t, nil))
	require.NoError(t, err)

	assert.Equal(t, ModeAuto, cfg.Mode)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, 20, cfg.MaxContextMessages)
	assert.Equal(t, 500, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Equal(t, 20*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.LocalDelay)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ModeLocal, cfg.ResolveMode())
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		provider string
		key      string
		want     Mode
	}{
		{"auto no key", ModeAuto, ProviderOpenAI, "", ModeLocal},
		{"auto placeholder", ModeAuto, ProviderOpenAI, "your_openai_api_key_here", ModeLocal},
		{"auto wrong prefix", ModeAuto, ProviderOpenAI, "pk-123", ModeLocal},
		{"auto openai key", ModeAuto, ProviderOpenAI, "sk-abc123", ModeRemote},
		{"auto gemini key", ModeAuto, ProviderGemini, "AIzaSyX", ModeRemote},
		{"auto openai key for gemini", ModeAuto, ProviderGemini, "sk-abc123", ModeLocal},
		{"forced local", ModeLocal, ProviderOpenAI, "sk-abc123", ModeLocal},
		{"forced remote", ModeRemote, ProviderOpenAI, "sk-abc123", ModeRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Mode: tt.mode, Provider: tt.provider, APIKey: tt.key}
			assert.Equal(t, tt.want, cfg.ResolveMode())
		})
	}
}

func TestFromViper_ProviderKeyFallback(t *testing.T) {
	cfg, err := FromViper(newViper(t, map[string]any{"openai_api_key": "sk-from-env"}))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.APIKey)
	assert.Equal(t, ModeRemote, cfg.ResolveMode())

	cfg, err = FromViper(newViper(t, map[string]any{
		"provider":       "Gemini",
		"gemini_api_key": "AIzaKey",
		"openai_api_key": "sk-ignored",
	}))
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "AIzaKey", cfg.APIKey)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := map[string]map[string]any{
		"unknown mode":        {"mode": "hybrid"},
		"unknown provider":    {"provider": "acme"},
		"zero context":        {"max_context_messages": 0},
		"zero tokens":         {"max_tokens": 0},
		"zero timeout":        {"remote_timeout": "0s"},
		"negative delay":      {"local_delay": "-1s"},
		"remote without key":  {"mode": "remote"},
		"remote with bad key": {"mode": "remote", "api_key": "your_openai_api_key_here"},
	}
	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromViper(newViper(t, values))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: local\nlocal_delay: 10ms\nallowed_origins:\n  - https://kpanalytix.com\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, 10*time.Millisecond, cfg.LocalDelay)
	assert.Equal(t, []string{"https://kpanalytix.com"}, cfg.AllowedOrigins)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_context_messages: 10\n"), 0o600))
	t.Setenv("KPA_MAX_CONTEXT_MESSAGES", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxContextMessages)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
