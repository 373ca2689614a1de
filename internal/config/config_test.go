package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"DISCORD_TOKEN", "POLL_INTERVAL_MS", "DEFAULT_DELAY_SECONDS", "STORE_DRIVER", "DATA_PATH",
		"DATABASE_URL", "PROBE_TIMEOUT", "PROBE_CONCURRENCY", "PROBE_RATE", "ANNOUNCE_FAILURE_POLICY", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.PollInterval != time.Minute || c.DefaultDelaySec != 0 || c.StoreDriver != StoreFile {
		t.Fatalf("unexpected defaults: %#v", c)
	}
	if c.DataPath != "./data/subscriptions.json" || c.ProbeTimeout != 15*time.Second || c.ProbeConcurrency != 8 {
		t.Fatalf("unexpected defaults: %#v", c)
	}
	if c.FailurePolicy != "confirm" || c.LogLevel != "info" || c.LogFormat != "text" {
		t.Fatalf("unexpected defaults: %#v", c)
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("POLL_INTERVAL_MS", "30000")
	t.Setenv("DEFAULT_DELAY_SECONDS", "1000")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("DATABASE_URL", "/tmp/state.db")
	t.Setenv("PROBE_TIMEOUT", "5s")
	t.Setenv("PROBE_RATE", "2.5")
	t.Setenv("ANNOUNCE_FAILURE_POLICY", "retry")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if c.PollInterval != 30*time.Second || c.DefaultDelaySec != 300 || c.StoreDriver != StoreSQLite {
		t.Fatalf("unexpected config: %#v", c)
	}
	if c.ProbeTimeout != 5*time.Second || c.ProbeRate != 2.5 || c.FailurePolicy != "retry" {
		t.Fatalf("unexpected config: %#v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"poll not a number":  {"POLL_INTERVAL_MS", "soon"},
		"poll zero":          {"POLL_INTERVAL_MS", "0"},
		"bad policy":         {"ANNOUNCE_FAILURE_POLICY", "ignore"},
		"bad driver":         {"STORE_DRIVER", "redis"},
		"postgres needs dsn": {"STORE_DRIVER", "postgres"},
		"bad timeout":        {"PROBE_TIMEOUT", "-1s"},
		"bad rate":           {"PROBE_RATE", "fast"},
		"bad concurrency":    {"PROBE_CONCURRENCY", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
