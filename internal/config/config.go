// Package config loads client settings from the environment, with a .env
// file picked up when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL string
	Username  string
	Token     string

	JWTSecret string // only used when running the loopback gateway

	EchoTimeout        time.Duration
	CorrelationTimeout time.Duration
	PageSize           int
	Debug              bool
}

func Load() *Config {
	// a missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	return &Config{
		ServerURL: getEnv("SOCIAL_SERVER_URL", "ws://localhost:8080/ws"),
		Username:  getEnv("SOCIAL_USERNAME", ""),
		Token:     getEnv("SOCIAL_TOKEN", ""),

		JWTSecret: getEnv("SOCIAL_JWT_SECRET", "dev-secret"),

		EchoTimeout:        getEnvAsDuration("SOCIAL_ECHO_TIMEOUT", 5*time.Second),
		CorrelationTimeout: getEnvAsDuration("SOCIAL_CONFIRM_TIMEOUT", 5*time.Second),
		PageSize:           getEnvAsInt("SOCIAL_PAGE_SIZE", 50),
		Debug:              getEnvAsBool("SOCIAL_DEBUG", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
