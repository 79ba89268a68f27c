package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// TelegramTokenEnv holds the bot token used by the Telegram bridge.
const TelegramTokenEnv = "TELEGRAM_BOT_TOKEN"

// dotenvLoad is godotenv.Load; tests may replace it.
var dotenvLoad = godotenv.Load

// LoadDotEnv loads the given .env files (".env" when none are named) into the
// process environment. Existing variables win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := dotenvLoad(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// EnvSecrets returns secrets from the process environment. A missing variable
// yields an empty string and no error so callers can report which one is unset.
func EnvSecrets(name string) (string, error) {
	return os.Getenv(name), nil
}
