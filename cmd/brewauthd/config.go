package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// daemonConfig is populated from environment variables via caarlos0/env
// tags. A .env file is merged into the process environment first.
type daemonConfig struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SentryDSN   string `env:"SENTRY_DSN"`

	CSRFProtection bool `env:"CSRF_PROTECTION" envDefault:"true"`

	JWT      jwtEnv      `envPrefix:"JWT_"`
	SMTP     smtpEnv     `envPrefix:"SMTP_"`
	BotCheck botCheckEnv `envPrefix:"BOTCHECK_"`
}

type jwtEnv struct {
	SigningMethod  string `env:"SIGNING_METHOD" envDefault:"ed25519"`
	HS256Secret    string `env:"HS256_SECRET"`
	PrivateKeyFile string `env:"ED25519_PRIVATE_KEY_FILE"`
	PublicKeyFile  string `env:"ED25519_PUBLIC_KEY_FILE"`
}

type smtpEnv struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

type botCheckEnv struct {
	VerifyURL string `env:"VERIFY_URL"`
	Secret    string `env:"SECRET"`
}

func loadConfig() (daemonConfig, error) {
	var cfg daemonConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c daemonConfig) production() bool {
	return c.AppEnv == "production"
}
