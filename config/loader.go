package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config / FLEETCTL_CONFIG)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto cfg.  Keys absent from
// the file leave cfg untouched.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the FLEETCTL_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("90s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FLEETCTL_GATEWAY"); v != "" {
		cfg.Gateway = v
	}
	if v := envInt("FLEETCTL_GATEWAY_PORT"); v > 0 {
		cfg.GatewayPort = v
	}
	if v := os.Getenv("FLEETCTL_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("FLEETCTL_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("FLEETCTL_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("FLEETCTL_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("FLEETCTL_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("FLEETCTL_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Directory
	if v := os.Getenv("FLEETCTL_SOURCE"); v != "" {
		cfg.Source = v
	}
	if v := os.Getenv("FLEETCTL_DIRECTORY_CMD"); v != "" {
		cfg.DirectoryCommand = v
	}
	if v := envInt("FLEETCTL_DIRECTORY_RETRIES"); v > 0 {
		cfg.DirectoryRetries = v
	}

	// Dispatch
	if v := envDuration("FLEETCTL_TIMEOUT"); v > 0 {
		cfg.Timeout = v
	}
	if v := envInt("FLEETCTL_PARALLEL"); v > 0 {
		cfg.Parallel = v
	}
	if v := envInt("FLEETCTL_BREAKER"); v > 0 {
		cfg.BreakerThreshold = v
	}

	// Census & monitor
	if v := envInt("FLEETCTL_CENSUS_PORT"); v > 0 {
		cfg.CensusPort = v
	}
	if v := os.Getenv("FLEETCTL_CENSUS_CMD"); v != "" {
		cfg.CensusCommand = v
	}
	if v := envDuration("FLEETCTL_INTERVAL"); v > 0 {
		cfg.Interval = v
	}
	if envBool("FLEETCTL_FIXED_RATE") {
		cfg.FixedRate = true
	}
	if v := os.Getenv("FLEETCTL_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	// Output
	if v := envInt("FLEETCTL_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
