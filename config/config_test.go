package config

import (
	"strings"
	"testing"
	"time"

	ferr "fleetctl/internal/errors"
)

// ── ParseGatewaySpec ─────────────────────────────────────────────────

func TestParseGatewaySpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@gw.example.com:2222", "admin", "gw.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseGatewaySpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── ParsePort ────────────────────────────────────────────────────────

func TestParsePort(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"902", 902, false},
		{" 443 ", 443, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"70000", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePort(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePort(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

// ── Defaults ─────────────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.CensusPort != DefaultCensusPort {
		t.Errorf("CensusPort = %d", cfg.CensusPort)
	}
	if cfg.Interval != 60*time.Second {
		t.Errorf("Interval = %v", cfg.Interval)
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel = %d", cfg.Parallel)
	}
	if got := cfg.EffectiveSource(); got != "gateway:"+DefaultDirectoryCommand {
		t.Errorf("EffectiveSource = %q", got)
	}
}

func TestCensusCommandFor(t *testing.T) {
	cfg := &Config{CensusCommand: "ss -tn | grep :{port} # {port}"}
	if got := cfg.CensusCommandFor(443); got != "ss -tn | grep :443 # 443" {
		t.Errorf("got %q", got)
	}
}

// ── Config.Validate ──────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	valid := func(mut func(*Config)) Config {
		c := New()
		c.Gateway = "gw"
		if mut != nil {
			mut(c)
		}
		return *c
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		wantSub string
	}{
		{name: "valid", cfg: valid(nil)},
		{name: "no gateway", cfg: valid(func(c *Config) { c.Gateway = "" }), wantErr: true, wantSub: "hint:"},
		{name: "bad census port", cfg: valid(func(c *Config) { c.CensusPort = 70000 }), wantErr: true, wantSub: "census-port"},
		{name: "zero interval", cfg: valid(func(c *Config) { c.Interval = 0 }), wantErr: true, wantSub: "interval"},
		{name: "zero parallel", cfg: valid(func(c *Config) { c.Parallel = 0 }), wantErr: true, wantSub: "parallel"},
		{name: "negative retries", cfg: valid(func(c *Config) { c.DirectoryRetries = -1 }), wantErr: true},
		{name: "census cmd without port", cfg: valid(func(c *Config) { c.CensusCommand = "netstat -an" }), wantErr: true, wantSub: "{port}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !ferr.Is(err, ferr.ErrInvalidArgument) {
				t.Errorf("error should be an invalid argument: %v", err)
			}
			if tt.wantSub != "" && !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
