package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	APIURL        string
	DBPath        string
	UserEmail     string
	APITimeout    time.Duration
	SecureCookies bool
}

// loadConfig reads the environment. Flags are applied on top by the CLI.
func loadConfig() (Config, error) {
	cfg := Config{
		Addr:          envOr("FORUM_ADDR", "127.0.0.1:8080"),
		APIURL:        envOr("FORUM_API_URL", "http://localhost:3000"),
		DBPath:        envOr("FORUM_DB", "forum.db"),
		UserEmail:     envOr("FORUM_USER_EMAIL", defaultPlaceholder),
		SecureCookies: os.Getenv("SECURE_COOKIES") == "true",
	}

	if raw := strings.TrimSpace(os.Getenv("FORUM_API_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FORUM_API_TIMEOUT %q: %w", raw, err)
		}
		cfg.APITimeout = d
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("backend URL is required")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("backend URL %q must start with http:// or https://", c.APIURL)
	}
	if c.APITimeout < 0 {
		return fmt.Errorf("negative API timeout %s", c.APITimeout)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
