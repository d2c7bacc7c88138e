// Package transport reaches fleet endpoints.  Every endpoint is an SSH
// daemon listening on its own port of a shared gateway host; a
// Transport runs commands there and copies files there, and reports
// failures as *errors.EndpointError so callers can tell an unreachable
// endpoint from one whose command failed.
package transport

import "context"

// Transport executes actions against a single endpoint identified by
// its gateway port.
type Transport interface {
	// Exec runs command verbatim on the endpoint and returns its
	// combined stdout/stderr.  Output is returned even when the remote
	// command fails.
	Exec(ctx context.Context, endpoint int, command string) (string, error)

	// Copy writes the local file to remotePath on the endpoint and
	// returns the number of bytes sent.
	Copy(ctx context.Context, endpoint int, localPath, remotePath string) (int64, error)

	// Close releases any long-lived resources.  Stateless transports
	// return nil.
	Close() error
}
