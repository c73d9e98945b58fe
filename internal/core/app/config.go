package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIKeys []string // Optional: accepted api-key header values; empty leaves the core open

	DatabaseDriver string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile   string // Optional: SQLite database file (default: ./core.db)
	DatabaseURL    string // Required for postgres: connection string

	SealKey        string        // Optional: base64 32-byte key sealing refresh tokens, TOTP secrets and stored keys
	Algorithm      string        // Optional: access token signing algorithm (RS256, ES256, EdDSA) (default: EdDSA)
	RSABits        int           // Optional: RSA key size for RS256
	NumKeys        int           // Optional: number of signing keys (default: 3, min: 1, max: 10)
	KeyStorageMode string        // Optional: ephemeral or persistent (default: ephemeral)
	KeyGracePeriod time.Duration // Optional: how long retired keys keep verifying (default: 30 days)

	AccessTokenTTL  time.Duration // Optional: access token validity (default: 1h)
	RefreshTokenTTL time.Duration // Optional: sliding refresh token validity (default: 100 days)
	EmailTokenTTL   time.Duration // Optional: email verification token validity (default: 24h)
	TOTPIssuer      string        // Optional: issuer shown in authenticator apps (default: tabsession)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 3567)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	// Clock replaces time.Now in the services. Not read from the environment.
	Clock func() time.Time
}

func LoadConfig() Config {
	cfg := Config{
		APIKeys:         splitList(os.Getenv("CORE_API_KEYS")),
		DatabaseDriver:  getEnvOrDefault("CORE_DATABASE_DRIVER", "sqlite"),
		DatabaseFile:    getEnvOrDefault("CORE_DATABASE_FILE", "core.db"),
		DatabaseURL:     os.Getenv("CORE_DATABASE_URL"),
		SealKey:         os.Getenv("CORE_SEAL_KEY"),
		Algorithm:       getEnvOrDefault("CORE_ALGORITHM", "EdDSA"),
		RSABits:         getEnvIntOrDefault("CORE_RSA_BITS", 0),
		NumKeys:         getEnvIntOrDefault("CORE_NUM_KEYS", 0),
		KeyStorageMode:  getEnvOrDefault("CORE_KEY_STORAGE_MODE", "ephemeral"),
		KeyGracePeriod:  getEnvDurationOrDefault("CORE_KEY_GRACE_PERIOD", 30*24*time.Hour),
		AccessTokenTTL:  getEnvDurationOrDefault("CORE_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDurationOrDefault("CORE_REFRESH_TOKEN_TTL", 100*24*time.Hour),
		EmailTokenTTL:   getEnvDurationOrDefault("CORE_EMAIL_TOKEN_TTL", 24*time.Hour),
		TOTPIssuer:      getEnvOrDefault("CORE_TOTP_ISSUER", "tabsession"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 3567),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
	return cfg
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
