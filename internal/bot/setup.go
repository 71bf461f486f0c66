package bot

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/raine/telegram-garment-bot/config"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Endpoints used to validate credentials during setup.
var (
	telegramAPIBase = "https://api.telegram.org"
	geminiAPIBase   = "https://generativelanguage.googleapis.com"
	openAIAPIBase   = "https://api.openai.com/v1"
)

var setupClient = resty.New().SetTimeout(10 * time.Second)

// IsInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can run the interactive setup wizard.
func IsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// RunSetupWizard runs an interactive wizard to collect required configuration.
// forBot also asks for the Telegram token and admin ID.
// Returns true if setup was successful and startup should continue.
func RunSetupWizard(forBot bool) bool {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("👕 Telegram Garment Bot - First-time Setup"))
	fmt.Println()

	provider := config.ProviderGemini
	if p := os.Getenv("GARMENT_PROVIDER"); p != "" {
		provider = p
	}

	providerForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Description service").
				Options(
					huh.NewOption("Google Gemini", config.ProviderGemini),
					huh.NewOption("OpenAI (or compatible)", config.ProviderOpenAI),
				).
				Value(&provider),
		),
	).WithTheme(huh.ThemeBase16())

	if !runForm(providerForm) {
		return false
	}

	var apiKey, botToken, adminID string

	keyInput := huh.NewInput().Value(&apiKey)
	if provider == config.ProviderOpenAI {
		keyInput = keyInput.
			Title("OpenAI API Key").
			Description("Get yours at https://platform.openai.com/api-keys").
			Validate(func(s string) error {
				if s == "" {
					return errors.New("API key is required")
				}
				return validateOpenAIKey(s)
			})
	} else {
		keyInput = keyInput.
			Title("Gemini API Key").
			Description("Get yours at https://aistudio.google.com/apikey").
			Validate(func(s string) error {
				if s == "" {
					return errors.New("API key is required")
				}
				return validateGeminiKey(s)
			})
	}

	groups := []*huh.Group{huh.NewGroup(keyInput)}
	if forBot {
		groups = append(groups,
			huh.NewGroup(
				huh.NewInput().
					Title("Telegram Bot Token").
					Description("Message @BotFather on Telegram → /newbot → copy token").
					Value(&botToken).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("token is required")
						}
						return validateTelegramToken(s)
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Your Telegram User ID").
					Description("Message @userinfobot to get your ID: https://t.me/userinfobot").
					Value(&adminID).
					Validate(func(s string) error {
						if s == "" {
							return errors.New("user ID is required")
						}
						if _, err := strconv.ParseInt(s, 10, 64); err != nil {
							return errors.New("must be a number")
						}
						return nil
					}),
			),
		)
	}

	if !runForm(huh.NewForm(groups...).WithTheme(huh.ThemeBase16())) {
		return false
	}

	values := map[string]string{
		"GARMENT_PROVIDER":  provider,
		"BOT_TOKEN":         botToken,
		"ADMIN_TELEGRAM_ID": adminID,
	}
	if provider == config.ProviderOpenAI {
		values["OPENAI_API_KEY"] = apiKey
	} else {
		values["GEMINI_API_KEY"] = apiKey
	}

	configPath, err := config.WriteEnvFile(values)
	if err != nil {
		fmt.Printf("\nError saving configuration: %v\n", err)
		WaitOnWindows()
		return false
	}

	// Set values in current process
	for k, v := range values {
		if v != "" {
			os.Setenv(k, v)
		}
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println()
	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()

	return true
}

func runForm(form *huh.Form) bool {
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("\nSetup cancelled.")
			return false
		}
		fmt.Printf("\nError: %v\n", err)
		return false
	}
	return true
}

// validateTelegramToken validates a Telegram bot token by calling the getMe API.
func validateTelegramToken(token string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}

	_, err := setupClient.R().
		SetResult(&result).
		SetError(&result).
		Get(fmt.Sprintf("%s/bot%s/getMe", telegramAPIBase, token))
	if err != nil {
		return errors.New("connection failed - check your internet")
	}

	if !result.OK {
		if result.Description != "" {
			return errors.New(result.Description)
		}
		return errors.New("token rejected by Telegram")
	}

	return nil
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// validateGeminiKey validates a Gemini API key with the lightweight models list endpoint.
func validateGeminiKey(key string) error {
	var apiErr apiErrorBody
	res, err := setupClient.R().
		SetQueryParam("key", key).
		SetError(&apiErr).
		Get(geminiAPIBase + "/v1beta/models")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	return checkKeyResponse(res, apiErr)
}

// validateOpenAIKey validates an OpenAI API key with the models list endpoint.
func validateOpenAIKey(key string) error {
	var apiErr apiErrorBody
	res, err := setupClient.R().
		SetAuthToken(key).
		SetError(&apiErr).
		Get(openAIAPIBase + "/models")
	if err != nil {
		return errors.New("connection failed - check your internet")
	}
	return checkKeyResponse(res, apiErr)
}

func checkKeyResponse(res *resty.Response, apiErr apiErrorBody) error {
	switch code := res.StatusCode(); {
	case code == 400 || code == 401 || code == 403:
		if apiErr.Error.Message != "" {
			return errors.New(apiErr.Error.Message)
		}
		return fmt.Errorf("API key rejected (HTTP %d)", code)
	case code != 200:
		return fmt.Errorf("unexpected response (HTTP %d)", code)
	}
	return nil
}

// WaitOnWindows pauses execution on Windows so users can see error messages
// before the console window closes.
func WaitOnWindows() {
	if runtime.GOOS == "windows" {
		fmt.Println()
		fmt.Println("Press Enter to exit...")
		fmt.Scanln()
	}
}

// FatalWithWait logs a fatal error and waits on Windows before exiting.
func FatalWithWait(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Error().Msg(msg)
	WaitOnWindows()
	os.Exit(1)
}
