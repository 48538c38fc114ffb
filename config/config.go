package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Settings holds all environment-driven configuration. Loaded once in main
// and passed explicitly to services; no package-level globals.
type Settings struct {
	AppName string `env:"APP_NAME" envDefault:"WattsTap Referral Service"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8000"`

	DatabaseURL string `env:"DATABASE_URL"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramBotUsername string `env:"TELEGRAM_BOT_USERNAME" envDefault:"WattsTapBot"`

	// initData older than this is rejected (Telegram replay window).
	InitDataMaxAgeSeconds int64 `env:"INIT_DATA_MAX_AGE_SECONDS" envDefault:"86400"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpirationSeconds int64  `env:"JWT_EXPIRATION_SECONDS" envDefault:"86400"`

	ReferralBonusWatts int64 `env:"REFERRAL_BONUS_WATTS" envDefault:"5000"`
	ReferralCodeLength int   `env:"REFERRAL_CODE_LENGTH" envDefault:"8"`
	InitialWatts       int64 `env:"INITIAL_WATTS" envDefault:"1000"`

	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"*"`
}

// Load parses settings from the environment. DATABASE_URL and
// TELEGRAM_BOT_TOKEN are the only hard requirements.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if s.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if s.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	return &s, nil
}

func (s *Settings) IsProduction() bool {
	return s.AppEnv == "production"
}
