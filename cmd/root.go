// Package cmd wires up the CLI flags and dispatches to the fleetctl core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"fleetctl/config"
	"fleetctl/internal/core"
	ferr "fleetctl/internal/errors"
	"fleetctl/internal/metrics"
	"fleetctl/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X fleetctl/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr receives usage text; tests swap it out.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the selected fleetctl mode.
//
// Settings are layered defaults < config file < FLEETCTL_* environment
// < flags.  Malformed command lines print usage and return an error
// wrapping ErrUsage.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()

	// ── config file & environment ────────────────────────────────
	if path := configPath(args); path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("fleetctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "YAML config file (also FLEETCTL_CONFIG)")

	// ── gateway & credential ─────────────────────────────────────
	fs.StringVarP(&cfg.Gateway, "gateway", "g", cfg.Gateway, "Gateway host as [user@]host[:ssh-port]")
	fs.StringVarP(&cfg.User, "user", "u", cfg.User, "Login user on every endpoint")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── directory ────────────────────────────────────────────────
	fs.StringVarP(&cfg.Source, "source", "s", cfg.Source, "Endpoint source (list:, file:, exec:, gateway:)")
	fs.StringVar(&cfg.DirectoryCommand, "directory-cmd", cfg.DirectoryCommand, "Gateway command listing live endpoints")
	fs.IntVar(&cfg.DirectoryRetries, "directory-retries", cfg.DirectoryRetries, "Retry a failed directory lookup N times")

	// ── dispatch ─────────────────────────────────────────────────
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Per-endpoint timeout (0 = none)")
	fs.IntVarP(&cfg.Parallel, "parallel", "P", cfg.Parallel, "Endpoints in flight at once")
	fs.IntVar(&cfg.BreakerThreshold, "breaker", cfg.BreakerThreshold, "Stop dialing after N consecutive unreachable endpoints (0 = off)")

	// ── census & monitor ─────────────────────────────────────────
	fs.IntVar(&cfg.CensusPort, "census-port", cfg.CensusPort, "Port counted by plain \"count\"")
	fs.StringVar(&cfg.CensusCommand, "census-cmd", cfg.CensusCommand, "Remote connection listing; {port} is substituted")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Pause between monitor samples")
	fs.BoolVar(&cfg.FixedRate, "fixed-rate", cfg.FixedRate, "Start monitor samples on a fixed clock")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for monitor logs")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	var quiet, dryRun, showVersion, showHelp bool
	fs.BoolVarP(&quiet, "quiet", "q", false, "Errors only")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and exit without contacting anything")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ferr.ErrUsage, err)
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("fleetctl %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	inv, err := core.ParseArgs(fs.Args(), cfg.Source != "")
	if err != nil {
		fmt.Fprintf(stderr, "fleetctl: %v\n\n", err)
		printUsage(fs)
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	cfg.Verbose += envVerbose
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build & run ──────────────────────────────────────────────
	// Per-endpoint progress is shown by default; -v adds detail.
	level := 1 + cfg.Verbose
	if quiet {
		level = 0
	}
	logger := newLogger(level, inv.Kind)
	m := metrics.New()
	b := &core.Builder{Config: cfg, Logger: logger, Metrics: m}
	mode, err := b.Build(inv)
	if err != nil {
		return err
	}
	if dryRun {
		logger.Info("dry run: %s via %s, source %s", inv.Kind, cfg.Gateway, sourceOf(cfg, inv))
		return nil
	}

	err = mode.Run(ctx)
	logger.Debug("metrics:\n%s", m.JSON())
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

// newLogger builds the run's logger.  Monitor runs last for hours, so
// their diagnostics carry wall-clock timestamps.
func newLogger(level int, kind core.Kind) *util.Logger {
	logger := util.NewLogger(level)
	if kind == core.KindMonitor {
		logger.SetTimestamps(true)
	}
	return logger
}

// configPath finds --config before the full flag set exists, so the
// file can seed the flag defaults.
func configPath(args []string) string {
	pre := flag.NewFlagSet("fleetctl", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	path := pre.String("config", "", "")
	pre.BoolP("help", "h", false, "")
	pre.Parse(args) //nolint:errcheck // the real parse reports errors
	if *path != "" {
		return *path
	}
	return os.Getenv("FLEETCTL_CONFIG")
}

func sourceOf(cfg *config.Config, inv core.Invocation) string {
	if inv.Source != "" {
		return inv.Source
	}
	return cfg.EffectiveSource()
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `fleetctl – fleet command dispatcher v%s

Runs one action against every endpoint behind a shared gateway.  Each
endpoint is an SSH port on the gateway host.

Usage:
  fleetctl [options] <endpoints-source> <command-text>   Run a command everywhere
  fleetctl [options] copy_file <localPath> <remotePath>  Copy a file everywhere
  fleetctl [options] count-902                           Count connections on port 902
  fleetctl [options] count-902 continuous                Sample every --interval into a log

Endpoint sources:
  list:10,11,12      fixed list (or just 10,11,12)
  file:PATH          one port per line, "-" for stdin
  exec:CMD           local command printing one port per line
  gateway:CMD        command run on the gateway (default: gateway:%s)

Options:
`, version, config.DefaultDirectoryCommand)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  fleetctl -g gw.example.com gateway:fleet-endpoints uptime
  fleetctl -g gw.example.com -P 8 list:2201,2202 'systemctl restart agent'
  fleetctl -g gw.example.com copy_file agent.conf /etc/agent.conf
  fleetctl -g gw.example.com count-902 continuous --interval 5m
`)
}
