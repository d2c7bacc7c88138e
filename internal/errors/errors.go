// Package errors provides the error kinds used across fleetctl.
//
// Fatal kinds (directory, invalid argument) abort an invocation before
// any endpoint is contacted.  Per-endpoint kinds (unreachable, remote
// failure) are recorded in dispatch results and never stop a pass.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrDirectoryUnavailable = errors.New("endpoint directory unavailable")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrEndpointUnreachable  = errors.New("endpoint unreachable")
	ErrRemoteCommandFailed  = errors.New("remote command failed")
	ErrCircuitOpen          = errors.New("circuit breaker is open")
	ErrTimeout              = errors.New("operation timed out")
	ErrAuthFailed           = errors.New("authentication failed")

	// ErrUsage means the command line was malformed.  Usage has already
	// been printed when it is returned.
	ErrUsage = errors.New("usage")
)

// ── Structured error types ───────────────────────────────────────────

// EndpointError describes a failed action against one endpoint.  Kind is
// either ErrEndpointUnreachable or ErrRemoteCommandFailed and is matched
// by errors.Is alongside the underlying cause.
type EndpointError struct {
	Endpoint   int
	Op         string // "exec", "copy", "census"
	Kind       error
	ExitStatus int // remote exit status, meaningful for ErrRemoteCommandFailed
	Err        error
}

func (e *EndpointError) Error() string {
	s := fmt.Sprintf("endpoint %d: %s: %v", e.Endpoint, e.Op, e.Kind)
	if e.Kind == ErrRemoteCommandFailed && e.ExitStatus != 0 {
		s += fmt.Sprintf(" (exit %d)", e.ExitStatus)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *EndpointError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "session", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrInvalidArgument }

// ExitError carries a specific process exit status.  Err is nil when
// the status alone says everything (e.g. a copy failure count).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Unreachable records that an endpoint could not be reached.
func Unreachable(endpoint int, op string, err error) *EndpointError {
	return &EndpointError{Endpoint: endpoint, Op: op, Kind: ErrEndpointUnreachable, Err: err}
}

// RemoteFailed records that the remote side ran but reported failure.
func RemoteFailed(endpoint int, op string, status int, err error) *EndpointError {
	return &EndpointError{Endpoint: endpoint, Op: op, Kind: ErrRemoteCommandFailed, ExitStatus: status, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Directory wraps err as a directory failure.
func Directory(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDirectoryUnavailable, fmt.Sprintf(format, args...))
}

// InvalidArgument wraps a message as an invalid-argument failure.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ── Classification helpers ───────────────────────────────────────────

// IsFatal reports whether err should abort a whole invocation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, ErrInvalidArgument)
}

// IsUnreachable reports whether err is a per-endpoint reachability failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrEndpointUnreachable)
}

// IsRemoteFailure reports whether the remote side ran and failed.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, ErrRemoteCommandFailed)
}

// IsRetryable reports whether err is worth retrying.  Only transient
// network conditions and directory outages qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDirectoryUnavailable) || errors.Is(err, ErrTimeout) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
