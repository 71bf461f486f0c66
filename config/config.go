package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	AppName     = "telegram-garment-bot"
	EnvFileName = "config.env"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the runtime configuration read from the environment.
type Config struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	BotToken   string
	AdminID    int64
	AllowedIDs []int64

	// CachePath is the SQLite description cache file. Empty keeps the cache in memory.
	CachePath     string
	ImageMaxWidth int
	QuotedBrand   bool
	MetricsAddr   string
	LogLevel      zerolog.Level
}

// Dir returns the application's config directory path.
// Creates the directory if it doesn't exist.
func Dir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	configDir := filepath.Join(configBase, AppName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// FilePath returns the full path to the env file.
func FilePath() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
// Variables already set in the environment win.
func LoadEnvFile() {
	configPath, err := FilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:      strings.ToLower(getEnv("GARMENT_PROVIDER", ProviderGemini)),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		BotToken:      os.Getenv("BOT_TOKEN"),
		CachePath:     os.Getenv("GARMENT_CACHE_PATH"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
	}

	if cfg.Provider != ProviderGemini && cfg.Provider != ProviderOpenAI {
		return nil, fmt.Errorf("GARMENT_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, cfg.Provider)
	}

	if s := os.Getenv("ADMIN_TELEGRAM_ID"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be a valid integer: %w", err)
		}
		cfg.AdminID = id
	}

	ids, err := parseIDList(os.Getenv("ALLOWED_TELEGRAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ALLOWED_TELEGRAM_IDS: %w", err)
	}
	cfg.AllowedIDs = ids

	width, err := strconv.Atoi(getEnv("IMAGE_MAX_WIDTH", "0"))
	if err != nil || width < 0 {
		return nil, fmt.Errorf("IMAGE_MAX_WIDTH must be a non-negative integer")
	}
	cfg.ImageMaxWidth = width

	quoted, err := strconv.ParseBool(getEnv("GARMENT_QUOTED_BRAND", "true"))
	if err != nil {
		return nil, fmt.Errorf("GARMENT_QUOTED_BRAND must be true or false: %w", err)
	}
	cfg.QuotedBrand = quoted

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

// CheckRequired returns the names of required environment variables that
// are not set. The bot additionally needs its token and admin ID.
func CheckRequired(forBot bool) []string {
	required := []string{"GEMINI_API_KEY"}
	if strings.ToLower(os.Getenv("GARMENT_PROVIDER")) == ProviderOpenAI {
		required = []string{"OPENAI_API_KEY"}
	}
	if forBot {
		required = append(required, "BOT_TOKEN", "ADMIN_TELEGRAM_ID")
	}

	var missing []string
	for _, v := range required {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// envFileOrder is the order keys are written to the env file.
var envFileOrder = []string{
	"GARMENT_PROVIDER",
	"BOT_TOKEN",
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
	"ADMIN_TELEGRAM_ID",
}

// WriteEnvFile writes values to the config file with mode 0600 and returns
// its path. Only known keys are written.
func WriteEnvFile(values map[string]string) (string, error) {
	configPath, err := FilePath()
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	for _, key := range envFileOrder {
		if val, ok := values[key]; ok && val != "" {
			if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
	}

	return configPath, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
