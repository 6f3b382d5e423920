package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime settings for the web server.
type Config struct {
	Addr string

	ConvertURL   string
	ProgressURL  string
	APIKey       string
	SendEmailURL string
	ContactTo    string

	SettingsDB string

	PollInterval    time.Duration
	PollMaxAttempts int
	HTTPTimeout     time.Duration
	SessionTTL      time.Duration
}

// NewDefaultConfig returns the settings used when nothing is overridden.
func NewDefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		ConvertURL:      "https://ab.cococococ.com/ajax/download.php",
		ProgressURL:     "https://p.oceansaver.in/ajax/progress.php",
		SendEmailURL:    "http://localhost:3000/api/send-email",
		ContactTo:       "webmaster@localhost",
		SettingsDB:      "settings.db",
		PollInterval:    time.Second,
		PollMaxAttempts: 600,
		HTTPTimeout:     30 * time.Second,
		SessionTTL:      2 * time.Hour,
	}
}

// FromEnv returns the defaults overridden by environment variables.
func FromEnv() *Config {
	return fromLookup(NewDefaultConfig(), os.Getenv)
}

func fromLookup(cfg *Config, getenv func(string) string) *Config {
	cfg.Addr = stringOr(getenv("APP_ADDR"), cfg.Addr)
	cfg.ConvertURL = stringOr(getenv("CONVERT_URL"), cfg.ConvertURL)
	cfg.ProgressURL = stringOr(getenv("PROGRESS_URL"), cfg.ProgressURL)
	cfg.APIKey = stringOr(getenv("CONVERT_API_KEY"), cfg.APIKey)
	cfg.SendEmailURL = stringOr(getenv("SEND_EMAIL_URL"), cfg.SendEmailURL)
	cfg.ContactTo = stringOr(getenv("CONTACT_TO"), cfg.ContactTo)
	cfg.SettingsDB = stringOr(getenv("SETTINGS_DB"), cfg.SettingsDB)
	cfg.PollInterval = durationOr(getenv("POLL_INTERVAL"), cfg.PollInterval)
	cfg.PollMaxAttempts = intOr(getenv("POLL_MAX_ATTEMPTS"), cfg.PollMaxAttempts)
	cfg.HTTPTimeout = durationOr(getenv("HTTP_TIMEOUT"), cfg.HTTPTimeout)
	cfg.SessionTTL = durationOr(getenv("SESSION_TTL"), cfg.SessionTTL)
	return cfg
}

func stringOr(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func intOr(val string, fallback int) int {
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func durationOr(val string, fallback time.Duration) time.Duration {
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
