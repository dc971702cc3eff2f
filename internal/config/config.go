package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL  string
	SocketURL   string
	StateFile   string
	HTTPTimeout time.Duration
	TypingTTL   time.Duration
}

func Load() (*Config, error) {
	// .env is optional; environment variables win.
	_ = godotenv.Load()

	httpTimeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "10s"))
	if err != nil {
		return nil, err
	}

	typingTTL, err := time.ParseDuration(getEnv("TYPING_TTL", "5s"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL:  getEnv("WORKCHAT_API_URL", "http://localhost:5000/api"),
		SocketURL:   getEnv("WORKCHAT_SOCKET_URL", "ws://localhost:5000/socket"),
		StateFile:   getEnv("WORKCHAT_STATE", "workchat.db"),
		HTTPTimeout: httpTimeout,
		TypingTTL:   typingTTL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("WORKCHAT_API_URL is not a valid URL: %w", err)
	}

	u, err := url.Parse(c.SocketURL)
	if err != nil {
		return fmt.Errorf("WORKCHAT_SOCKET_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("WORKCHAT_SOCKET_URL must use ws:// or wss:// scheme")
	}

	if c.StateFile == "" {
		return fmt.Errorf("WORKCHAT_STATE is required")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be greater than 0")
	}

	if c.TypingTTL <= 0 {
		return fmt.Errorf("TYPING_TTL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
