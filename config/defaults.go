package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultSSHPort is the gateway's own SSH port, used by the
	// gateway directory source.
	DefaultSSHPort = 22

	// DefaultUser is the login used on every endpoint.
	DefaultUser = "root"

	// DefaultDirectoryCommand lists live endpoint ports on the gateway,
	// one per line.
	DefaultDirectoryCommand = "fleet-endpoints"

	// DefaultEndpointTimeout bounds a single endpoint action.  A hung
	// call is recorded as unreachable once it expires.
	DefaultEndpointTimeout = 2 * time.Minute

	// DefaultParallel keeps dispatch strictly sequential.
	DefaultParallel = 1

	// DefaultCensusPort is the port whose connections the census counts.
	DefaultCensusPort = 902

	// DefaultCensusCommand lists connections on {port}.  The trailing
	// "|| true" keeps an empty grep from looking like a remote failure.
	DefaultCensusCommand = "netstat -an 2>/dev/null | grep -F ':{port}' || true"

	// DefaultInterval is the pause between monitor samples.
	DefaultInterval = 60 * time.Second

	// DefaultLogDir is where monitor logs are created.
	DefaultLogDir = "."

	// DefaultDirectoryBackoff is the first delay between directory
	// resolution attempts when --directory-retries is set.
	DefaultDirectoryBackoff = 2 * time.Second

	// DefaultBreakerReset is how long an open gateway breaker waits
	// before probing again.
	DefaultBreakerReset = 30 * time.Second

	// MaxExitCode caps the copy_file exit status so it never collides
	// with shell-reserved codes.
	MaxExitCode = 125
)
