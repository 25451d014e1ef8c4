package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envOverlay lists the settings that may come from the environment.
// Non-empty values override the file.
type envOverlay struct {
	Token       string `env:"TUNEBOT_TOKEN" env-description:"Telegram bot token"`
	APIURL      string `env:"TUNEBOT_API_URL" env-description:"download API base URL"`
	APIKey      string `env:"TUNEBOT_API_KEY" env-description:"download API key"`
	SaveChannel int64  `env:"TUNEBOT_SAVE_CHANNEL" env-description:"archive channel id"`
	LogLevel    string `env:"TUNEBOT_LOG_LEVEL" env-description:"log level override"`
}

func applyEnv(cfg *Config) error {
	var e envOverlay
	if err := cleanenv.ReadEnv(&e); err != nil {
		return fmt.Errorf("read env: %w", err)
	}
	if v := strings.TrimSpace(e.Token); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(e.APIURL); v != "" {
		cfg.Download.APIURL = v
	}
	if v := strings.TrimSpace(e.APIKey); v != "" {
		cfg.Download.APIKey = v
	}
	if e.SaveChannel != 0 {
		cfg.Telegram.SaveChannel = e.SaveChannel
	}
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// EnvHelp describes the environment overrides, for the CLI.
func EnvHelp() (string, error) {
	var e envOverlay
	return cleanenv.GetDescription(&e, nil)
}
