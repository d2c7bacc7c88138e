// Package config defines the runtime configuration for fleetctl and
// provides helpers for parsing ports and gateway specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ferr "fleetctl/internal/errors"
)

// Config holds every tuneable for a single fleetctl invocation.
type Config struct {
	// ── Gateway & credential ─────────────────────────────────────────
	Gateway        string `yaml:"gateway"` // shared host every endpoint port lives on
	GatewayPort    int    `yaml:"gateway_port"`
	User           string `yaml:"user"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Directory ────────────────────────────────────────────────────
	Source           string `yaml:"source"` // endpoint source spec, see directory.ParseSource
	DirectoryCommand string `yaml:"directory_command"`
	DirectoryRetries int    `yaml:"directory_retries"`

	// ── Dispatch ─────────────────────────────────────────────────────
	Timeout          time.Duration `yaml:"timeout"`
	Parallel         int           `yaml:"parallel"`
	BreakerThreshold int           `yaml:"breaker_threshold"`

	// ── Census & monitor ─────────────────────────────────────────────
	CensusPort    int           `yaml:"census_port"`
	CensusCommand string        `yaml:"census_command"`
	Interval      time.Duration `yaml:"interval"`
	FixedRate     bool          `yaml:"fixed_rate"`
	LogDir        string        `yaml:"log_dir"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int `yaml:"verbose"`
}

// New returns a Config populated with every default.
func New() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(c *Config) {
	if c.GatewayPort == 0 {
		c.GatewayPort = DefaultSSHPort
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.DirectoryCommand == "" {
		c.DirectoryCommand = DefaultDirectoryCommand
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultEndpointTimeout
	}
	if c.Parallel == 0 {
		c.Parallel = DefaultParallel
	}
	if c.CensusPort == 0 {
		c.CensusPort = DefaultCensusPort
	}
	if c.CensusCommand == "" {
		c.CensusCommand = DefaultCensusCommand
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
}

// EffectiveSource returns the endpoint source spec, falling back to
// running the directory command on the gateway.
func (c *Config) EffectiveSource() string {
	if c.Source != "" {
		return c.Source
	}
	return "gateway:" + c.DirectoryCommand
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(spec))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Gateway-spec parser ──────────────────────────────────────────────

// gatewayRe matches [user@]host[:port].
var gatewayRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseGatewaySpec extracts user, host, and port from a string such as
// "admin@gw.example.com:2222".  Port defaults to 22 and user to "".
func ParseGatewaySpec(spec string) (user, host string, port int, err error) {
	m := gatewayRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid gateway spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid gateway port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Gateway == "" {
		return &ferr.ConfigError{
			Field:   "gateway",
			Message: "gateway host is required",
			Hint:    "pass --gateway host or set FLEETCTL_GATEWAY",
		}
	}
	if c.CensusPort < 1 || c.CensusPort > 65535 {
		return &ferr.ConfigError{
			Field:   "census-port",
			Value:   c.CensusPort,
			Message: "out of range 1-65535",
		}
	}
	if c.Timeout < 0 {
		return &ferr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.Interval <= 0 {
		return &ferr.ConfigError{
			Field:   "interval",
			Value:   c.Interval,
			Message: "must be positive",
			Hint:    "use a duration such as 60s or 5m",
		}
	}
	if c.Parallel < 1 {
		return &ferr.ConfigError{Field: "parallel", Value: c.Parallel, Message: "must be at least 1"}
	}
	if c.DirectoryRetries < 0 {
		return &ferr.ConfigError{Field: "directory-retries", Value: c.DirectoryRetries, Message: "must not be negative"}
	}
	if c.BreakerThreshold < 0 {
		return &ferr.ConfigError{Field: "breaker", Value: c.BreakerThreshold, Message: "must not be negative"}
	}
	if !strings.Contains(c.CensusCommand, "{port}") {
		return &ferr.ConfigError{
			Field:   "census-cmd",
			Value:   c.CensusCommand,
			Message: "must reference the target port",
			Hint:    "include the {port} placeholder",
		}
	}
	return nil
}

// CensusCommandFor expands the census command template for port.
func (c *Config) CensusCommandFor(port int) string {
	return strings.ReplaceAll(c.CensusCommand, "{port}", strconv.Itoa(port))
}
