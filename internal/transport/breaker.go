package transport

import (
	"context"

	ferr "fleetctl/internal/errors"
	"fleetctl/internal/retry"
)

// BreakerTransport wraps a Transport with a gateway circuit breaker.
// Only unreachable endpoints count as failures; once the breaker
// opens, further endpoints are recorded unreachable without dialing.
type BreakerTransport struct {
	Transport
	breaker *retry.CircuitBreaker
}

// WithBreaker wraps next.  cfg.IsFailure is forced to
// [ferr.IsUnreachable].
func WithBreaker(next Transport, cfg retry.CircuitBreakerConfig) *BreakerTransport {
	cfg.IsFailure = ferr.IsUnreachable
	return &BreakerTransport{Transport: next, breaker: retry.NewCircuitBreaker(&cfg)}
}

// State reports the breaker state.
func (b *BreakerTransport) State() retry.State { return b.breaker.CurrentState() }

func (b *BreakerTransport) Exec(ctx context.Context, endpoint int, command string) (string, error) {
	var out string
	err := b.breaker.Execute(func() error {
		var err error
		out, err = b.Transport.Exec(ctx, endpoint, command)
		return err
	})
	return out, b.tag(endpoint, "exec", err)
}

func (b *BreakerTransport) Copy(ctx context.Context, endpoint int, localPath, remotePath string) (int64, error) {
	var n int64
	err := b.breaker.Execute(func() error {
		var err error
		n, err = b.Transport.Copy(ctx, endpoint, localPath, remotePath)
		return err
	})
	return n, b.tag(endpoint, "copy", err)
}

// tag turns a breaker rejection into an unreachable endpoint error.
func (b *BreakerTransport) tag(endpoint int, op string, err error) error {
	if ferr.Is(err, ferr.ErrCircuitOpen) && !ferr.IsUnreachable(err) {
		return ferr.Unreachable(endpoint, op, err)
	}
	return err
}
