package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allVars = []string{
	"GARMENT_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "OPENAI_API_KEY",
	"OPENAI_MODEL", "OPENAI_BASE_URL", "BOT_TOKEN", "ADMIN_TELEGRAM_ID",
	"ALLOWED_TELEGRAM_IDS", "GARMENT_CACHE_PATH", "IMAGE_MAX_WIDTH",
	"GARMENT_QUOTED_BRAND", "METRICS_ADDR", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, int64(0), cfg.AdminID)
	assert.Empty(t, cfg.AllowedIDs)
	assert.Equal(t, "", cfg.CachePath)
	assert.Equal(t, 0, cfg.ImageMaxWidth)
	assert.True(t, cfg.QuotedBrand)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestLoad_Values(t *testing.T) {
	clearEnv(t)
	t.Setenv("GARMENT_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("ADMIN_TELEGRAM_ID", "42")
	t.Setenv("ALLOWED_TELEGRAM_IDS", "7, 8,,9")
	t.Setenv("IMAGE_MAX_WIDTH", "1024")
	t.Setenv("GARMENT_QUOTED_BRAND", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.OpenAIBaseURL)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, []int64{7, 8, 9}, cfg.AllowedIDs)
	assert.Equal(t, 1024, cfg.ImageMaxWidth)
	assert.False(t, cfg.QuotedBrand)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown provider", "GARMENT_PROVIDER", "claude"},
		{"admin id", "ADMIN_TELEGRAM_ID", "abc"},
		{"allowed ids", "ALLOWED_TELEGRAM_IDS", "1,two"},
		{"negative width", "IMAGE_MAX_WIDTH", "-5"},
		{"quoted brand", "GARMENT_QUOTED_BRAND", "maybe"},
		{"log level", "LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestCheckRequired(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, []string{"GEMINI_API_KEY"}, CheckRequired(false))
	assert.Equal(t, []string{"GEMINI_API_KEY", "BOT_TOKEN", "ADMIN_TELEGRAM_ID"}, CheckRequired(true))

	t.Setenv("GARMENT_PROVIDER", "openai")
	assert.Equal(t, []string{"OPENAI_API_KEY"}, CheckRequired(false))

	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_TELEGRAM_ID", "1")
	assert.Empty(t, CheckRequired(true))
}

func TestWriteEnvFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on XDG_CONFIG_HOME")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := WriteEnvFile(map[string]string{
		"BOT_TOKEN":         "123:abc",
		"GEMINI_API_KEY":    "AIza-test",
		"ADMIN_TELEGRAM_ID": "42",
		"UNRELATED":         "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AppName, EnvFileName), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	values, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"BOT_TOKEN":         "123:abc",
		"GEMINI_API_KEY":    "AIza-test",
		"ADMIN_TELEGRAM_ID": "42",
	}, values)
}
