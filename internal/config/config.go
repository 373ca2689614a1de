package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ilinovom/stream-announce-bot/internal/model"
)

// Store drivers.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds runtime configuration loaded from the environment.
type Config struct {
	DiscordToken    string
	DiscordClientID string
	DiscordGuildID  string

	PollInterval     time.Duration
	DefaultDelaySec  int
	FailurePolicy    string
	StoreDriver      string
	DataPath         string
	DatabaseURL      string
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	ProbeRate        float64
	ProbeUserAgent   string
	MetricsAddr      string
	LogLevel         string
	LogFormat        string
}

// Load reads a .env file when present and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv loads configuration from environment variables. DISCORD_TOKEN is
// only checked by Validate so that offline commands can run without it.
func FromEnv() (*Config, error) {
	c := &Config{
		DiscordToken:    os.Getenv("DISCORD_TOKEN"),
		DiscordClientID: os.Getenv("DISCORD_CLIENT_ID"),
		DiscordGuildID:  os.Getenv("DISCORD_GUILD_ID"),
		FailurePolicy:   getEnvOrDefault("ANNOUNCE_FAILURE_POLICY", "confirm"),
		StoreDriver:     strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreFile)),
		DataPath:        getEnvOrDefault("DATA_PATH", "./data/subscriptions.json"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ProbeUserAgent:  getEnvOrDefault("PROBE_USER_AGENT", "Mozilla/5.0"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		LogLevel:        strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}

	pollMs, err := intEnv("POLL_INTERVAL_MS", 60000)
	if err != nil {
		return nil, err
	}
	if pollMs <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive, got %d", pollMs)
	}
	c.PollInterval = time.Duration(pollMs) * time.Millisecond

	delay, err := intEnv("DEFAULT_DELAY_SECONDS", 0)
	if err != nil {
		return nil, err
	}
	c.DefaultDelaySec = model.ClampDelay(delay)

	if c.ProbeTimeout, err = durationEnv("PROBE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if c.ProbeConcurrency, err = intEnv("PROBE_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if c.ProbeConcurrency <= 0 {
		return nil, fmt.Errorf("PROBE_CONCURRENCY must be positive, got %d", c.ProbeConcurrency)
	}
	if v := os.Getenv("PROBE_RATE"); v != "" {
		c.ProbeRate, err = strconv.ParseFloat(v, 64)
		if err != nil || c.ProbeRate < 0 {
			return nil, fmt.Errorf("invalid PROBE_RATE %q", v)
		}
	}

	switch c.FailurePolicy {
	case "confirm", "retry":
	default:
		return nil, fmt.Errorf("invalid ANNOUNCE_FAILURE_POLICY %q (want confirm or retry)", c.FailurePolicy)
	}
	switch c.StoreDriver {
	case StoreFile:
	case StorePostgres, StoreSQLite:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q (want file, postgres or sqlite)", c.StoreDriver)
	}
	return c, nil
}

// Validate checks the settings the bot needs to connect to Discord.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is not set")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
