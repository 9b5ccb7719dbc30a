// Package config loads identitycore's tunables from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the core components read at startup.
type Config struct {
	Env string

	// Token Codec (C2)
	SigningSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	TokenIssuer     string

	// Password Hasher (C1)
	ArgonTime    uint32
	ArgonMemory  uint32
	ArgonThreads uint8

	// Principal Registry (C4)
	AllowPublicRegistration  bool
	PasswordResetTTL         time.Duration
	PasswordResetMaxAttempts int
	PasswordResetWindow      time.Duration

	DatabaseURL string
}

// Load reads configuration from environment variables, falling back to
// defaults that are safe for local development.
func Load() Config {
	return Config{
		Env:             getEnv("APP_ENV", "development"),
		SigningSecret:   os.Getenv("IDENTITYCORE_SIGNING_SECRET"),
		AccessTokenTTL:  getEnvAsDuration("ACCESS_TOKEN_TTL", 900*time.Second),
		RefreshTokenTTL: getEnvAsDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		TokenIssuer:     getEnv("TOKEN_ISSUER", "identitycore"),

		ArgonTime:    uint32(getEnvAsInt("ARGON2_TIME", 1)),
		ArgonMemory:  uint32(getEnvAsInt("ARGON2_MEMORY_KIB", 64*1024)),
		ArgonThreads: uint8(getEnvAsInt("ARGON2_THREADS", 4)),

		AllowPublicRegistration:  getEnvAsBool("ALLOW_PUBLIC_REGISTRATION", true),
		PasswordResetTTL:         getEnvAsDuration("PASSWORD_RESET_TTL", time.Hour),
		PasswordResetMaxAttempts: getEnvAsInt("PASSWORD_RESET_MAX_ATTEMPTS", 3),
		PasswordResetWindow:      getEnvAsDuration("PASSWORD_RESET_WINDOW", time.Hour),

		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

func getEnv(name, defaultVal string) string {
	v := os.Getenv(name)
	if v == "" {
		return defaultVal
	}
	return v
}

func getEnvAsBool(name string, defaultVal bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsInt(name string, defaultVal int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
