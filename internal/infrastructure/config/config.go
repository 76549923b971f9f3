// SPDX-License-Identifier: AGPL-3.0-or-later
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of environment-driven settings for the warmup
// worker process, one struct per concern.
type Config struct {
	Queue     QueueConfig
	Cooldown  CooldownConfig
	Database  DatabaseConfig
	Crypto    CryptoConfig
	OAuth     OAuthConfig
	Logger    LoggerConfig
	Ingest    IngestConfig
	Batch     BatchConfig
}

// QueueConfig points at the SQS queue the ingest loop drains.
type QueueConfig struct {
	URL       string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // optional, for SQS-compatible local test servers
}

// CooldownConfig points at the Redis instance backing C2.
type CooldownConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig is the Postgres DSN for the relational log/credential store.
type DatabaseConfig struct {
	DSN string
}

// CryptoConfig is the process-wide symmetric key used for at-rest token
// encryption (spec.md §6: 32-byte hex).
type CryptoConfig struct {
	EncryptionKeyHex string
}

// OAuthConfig carries the client id/secret/redirect URI the credential
// resolver uses to refresh per-sender OAuth access tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// LoggerConfig controls the slog level.
type LoggerConfig struct {
	Level string
}

// IngestConfig controls the ingest loop's tick period and fan-out width.
type IngestConfig struct {
	TickInterval  time.Duration
	MaxConcurrent int
	ReceiveLimit  int
}

// BatchConfig controls the batch processor's tick period and fan-out width.
type BatchConfig struct {
	TickInterval  time.Duration
	MaxConcurrent int
}

// Load reads configuration from the environment, panicking-free: required
// variables return an error instead of the teacher's mustGetEnv panic, since
// this is a headless worker with no HTTP framework to recover() a panic for.
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.Queue.URL, err = requireEnv("WARMUP_QUEUE_URL"); err != nil {
		return nil, err
	}
	cfg.Queue.Region = getEnv("WARMUP_QUEUE_REGION", "us-east-1")
	cfg.Queue.AccessKey = getEnv("WARMUP_QUEUE_ACCESS_KEY", "")
	cfg.Queue.SecretKey = getEnv("WARMUP_QUEUE_SECRET_KEY", "")
	cfg.Queue.Endpoint = getEnv("WARMUP_QUEUE_ENDPOINT", "")

	if cfg.Cooldown.Addr, err = requireEnv("WARMUP_REDIS_ADDR"); err != nil {
		return nil, err
	}
	cfg.Cooldown.Password = getEnv("WARMUP_REDIS_PASSWORD", "")
	cfg.Cooldown.DB = getEnvInt("WARMUP_REDIS_DB", 0)

	if cfg.Database.DSN, err = requireEnv("WARMUP_DB_DSN"); err != nil {
		return nil, err
	}

	if cfg.Crypto.EncryptionKeyHex, err = requireEnv("WARMUP_ENCRYPTION_KEY"); err != nil {
		return nil, err
	}
	if len(cfg.Crypto.EncryptionKeyHex) != 64 {
		return nil, fmt.Errorf("WARMUP_ENCRYPTION_KEY must be a 32-byte hex string (64 hex chars), got %d chars", len(cfg.Crypto.EncryptionKeyHex))
	}

	cfg.OAuth.ClientID = getEnv("WARMUP_OAUTH_CLIENT_ID", "")
	cfg.OAuth.ClientSecret = getEnv("WARMUP_OAUTH_CLIENT_SECRET", "")
	cfg.OAuth.RedirectURI = getEnv("WARMUP_OAUTH_REDIRECT_URI", "")

	cfg.Logger.Level = getEnv("WARMUP_LOG_LEVEL", "info")

	cfg.Ingest.TickInterval = getEnvDuration("WARMUP_INGEST_INTERVAL", 2*time.Minute)
	cfg.Ingest.MaxConcurrent = getEnvInt("WARMUP_INGEST_CONCURRENCY", 10)
	cfg.Ingest.ReceiveLimit = getEnvInt("WARMUP_INGEST_RECEIVE_LIMIT", 10)

	cfg.Batch.TickInterval = getEnvDuration("WARMUP_BATCH_INTERVAL", 60*time.Minute)
	cfg.Batch.MaxConcurrent = getEnvInt("WARMUP_BATCH_CONCURRENCY", 5)

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("missing required environment variable: %s", key)
	}
	return value, nil
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
