// Package config loads the service configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Fields without a default are
// required only where the envDefault tag is absent and `required` is set.
type Config struct {
	// AppEnv selects production behavior: real email delivery becomes
	// mandatory and session cookies are marked Secure.
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   int    `env:"PORT" envDefault:"8080"`

	DBPath string `env:"DB_PATH" envDefault:"auth.db"`

	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	// FrontendURL is the base for post-OAuth redirects and reset links.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	Google OAuthCredentials `envPrefix:"GOOGLE_"`
	GitHub OAuthCredentials `envPrefix:"GITHUB_"`

	SMTP SMTP `envPrefix:"SMTP_"`
}

// OAuthCredentials is one provider's client registration. A provider with
// an empty ClientID is treated as not configured and its routes are not
// mounted.
type OAuthCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Configured reports whether the provider can be mounted.
func (c OAuthCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.CallbackURL != ""
}

// SMTP is the outgoing mail relay. Unset outside production, in which
// case OTPs and reset links are logged instead of emailed.
type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	FromName string `env:"FROM_NAME" envDefault:"Auth Service"`
}

// Configured reports whether enough settings are present for real SMTP
// delivery. Must stay in sync with the sender selection in cmd/server: a
// partially configured relay falls back to logging, which production must
// never do.
func (s SMTP) Configured() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

// Load reads a .env file if one is present, then parses the environment.
// A missing .env file is not an error; a malformed environment is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.IsProduction() && !cfg.SMTP.Configured() {
		return nil, fmt.Errorf("config: SMTP_HOST, SMTP_USERNAME and SMTP_PASSWORD are required when APP_ENV=production")
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production policies.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
