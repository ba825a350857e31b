package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quokkaworks/identity/pkg/jwtx"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens

	Algorithm      string        // Optional: JWT signing algorithm (RS256, EdDSA) (default: EdDSA)
	RSABits        int           // Optional: RSA key size for RS256 (default: 4096)
	NumKeys        int           // Optional: number of signing keys to generate (default: 3, min: 1, max: 10)
	KeyStorageMode string        // Optional: key storage mode (ephemeral, persistent) (default: ephemeral)
	KeyGracePeriod time.Duration // Optional: grace period for retired keys (default: 30 days)
	MasterKeyPath  string        // Optional: path to master encryption key file (for persistent keys)

	DatabaseFile string // Optional: path to SQLite database file (default: ./identity.db)

	RedisAddr     string // Revocation ledger address (default: localhost:6379)
	RedisPassword string // Optional
	RedisDB       int    // Optional

	AccessTTL  time.Duration // Access token lifetime (default: 24h)
	RefreshTTL time.Duration // Refresh token lifetime (default: 240h)

	PrivilegedRoles []string // Roles that grant privileged access (default: superuser, admin, service)

	RotationLimit  int           // Rotations allowed per subject per window; 0 disables the limiter
	RotationWindow time.Duration // Window for the rotation limiter (default: 1m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	HistoryRetention     time.Duration // Login history retention (default: 90 days)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("IDENTITY_ISSUER", "identity"),
		Algorithm:      getEnvOrDefault("IDENTITY_ALGORITHM", "EdDSA"),
		RSABits:        getEnvIntOrDefault("IDENTITY_RSA_BITS", 0),
		NumKeys:        getEnvIntOrDefault("IDENTITY_NUM_KEYS", 0),
		KeyStorageMode: getEnvOrDefault("IDENTITY_KEY_STORAGE_MODE", "ephemeral"),
		KeyGracePeriod: getEnvDurationOrDefault("IDENTITY_KEY_GRACE_PERIOD", 30*24*time.Hour),
		MasterKeyPath:  os.Getenv("IDENTITY_MASTER_KEY_PATH"),

		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),

		RedisAddr:     getEnvOrDefault("IDENTITY_REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("IDENTITY_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("IDENTITY_REDIS_DB", 0),

		AccessTTL:  getEnvDurationOrDefault("IDENTITY_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("IDENTITY_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		RotationLimit:  getEnvIntOrDefault("IDENTITY_ROTATION_LIMIT", 0),
		RotationWindow: getEnvDurationOrDefault("IDENTITY_ROTATION_WINDOW", time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		HistoryRetention:     getEnvDurationOrDefault("IDENTITY_HISTORY_RETENTION", 90*24*time.Hour),
	}

	if raw := os.Getenv("IDENTITY_PRIVILEGED_ROLES"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.PrivilegedRoles = append(cfg.PrivilegedRoles, name)
			}
		}
	}

	return cfg
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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
