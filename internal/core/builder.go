package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"fleetctl/config"
	"fleetctl/internal/census"
	"fleetctl/internal/directory"
	"fleetctl/internal/dispatch"
	ferr "fleetctl/internal/errors"
	"fleetctl/internal/metrics"
	"fleetctl/internal/monitor"
	"fleetctl/internal/retry"
	"fleetctl/internal/transport"
	"fleetctl/util"
)

var timeNow = time.Now //nolint:gochecknoglobals

// Builder assembles a Mode from a Config and an Invocation.  Zero
// fields get production values: SSH to the configured gateway, a fresh
// metrics collector, and the process's stdin/stdout.
type Builder struct {
	Config    *config.Config
	Logger    *util.Logger
	Transport transport.Transport
	Metrics   *metrics.Collector
	Stdin     io.Reader
	Stdout    io.Writer
}

// Build constructs the Mode for inv using production defaults.
func Build(cfg *config.Config, inv Invocation, logger *util.Logger) (Mode, error) {
	return (&Builder{Config: cfg, Logger: logger}).Build(inv)
}

// Build constructs the Mode for inv.
func (b *Builder) Build(inv Invocation) (Mode, error) {
	cfg := b.Config
	if b.Metrics == nil {
		b.Metrics = metrics.New()
	}

	tr, gatewayPort, err := b.transport()
	if err != nil {
		return nil, err
	}

	resolve, err := b.resolver(inv, tr, gatewayPort)
	if err != nil {
		return nil, err
	}

	fleet := Fleet{
		Resolve: resolve,
		Dispatcher: &dispatch.Dispatcher{
			Transport: tr,
			Logger:    b.Logger,
			Metrics:   b.Metrics,
			Timeout:   cfg.Timeout,
			Parallel:  cfg.Parallel,
		},
		Logger: b.Logger,
		Stdout: b.Stdout,
	}

	port := inv.Port
	if port == 0 {
		port = cfg.CensusPort
	}
	cen := &census.Census{Dispatcher: fleet.Dispatcher, Command: cfg.CensusCommandFor}

	switch inv.Kind {
	case KindRun:
		return &RunMode{Fleet: fleet, Command: inv.Command}, nil
	case KindCopy:
		return &CopyMode{
			Fleet:      fleet,
			LocalPath:  inv.LocalPath,
			RemotePath: inv.RemotePath,
			MaxExit:    config.MaxExitCode,
		}, nil
	case KindCensus:
		return &CensusMode{Fleet: fleet, Census: cen, Port: port}, nil
	case KindMonitor:
		return &MonitorMode{
			Fleet:  fleet,
			Census: cen,
			Port:   port,
			LogDir: cfg.LogDir,
			Monitor: monitor.Monitor{
				Interval:  cfg.Interval,
				FixedRate: cfg.FixedRate,
				Metrics:   b.Metrics,
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown invocation kind %v", inv.Kind)
}

// transport returns the endpoint transport and the gateway's own SSH
// port.  A gateway spec of the form user@host:port overrides the
// configured user and gateway port.
func (b *Builder) transport() (transport.Transport, int, error) {
	cfg := b.Config
	user, host, port, err := config.ParseGatewaySpec(cfg.Gateway)
	if err != nil {
		return nil, 0, &ferr.ConfigError{Field: "gateway", Value: cfg.Gateway, Message: err.Error()}
	}
	if user == "" {
		user = cfg.User
	}
	if port == config.DefaultSSHPort && cfg.GatewayPort != 0 {
		port = cfg.GatewayPort
	}

	tr := b.Transport
	if tr == nil {
		tr = transport.NewSSHTransport(&transport.SSHConfig{
			User:          user,
			Host:          host,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
		}, b.Logger)
	}

	if cfg.BreakerThreshold > 0 {
		tr = transport.WithBreaker(tr, retry.CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerThreshold,
			ResetTimeout: config.DefaultBreakerReset,
			OnStateChange: func(from, to retry.State) {
				b.Logger.Warn("gateway breaker %s -> %s", from, to)
			},
		})
	}
	return tr, port, nil
}

// resolver builds the directory lookup, wrapped in a backoff loop when
// directory retries are configured.
func (b *Builder) resolver(inv Invocation, tr transport.Transport, gatewayPort int) (ResolveFunc, error) {
	cfg := b.Config
	spec := inv.Source
	if spec == "" {
		spec = cfg.EffectiveSource()
	}

	src, err := directory.ParseSource(spec, &directory.Gateway{Transport: tr, Port: gatewayPort})
	if err != nil {
		return nil, err
	}
	if f, ok := src.(*directory.File); ok {
		f.Stdin = b.Stdin
		if f.Stdin == nil {
			f.Stdin = os.Stdin
		}
	}

	once := func(ctx context.Context) ([]int, error) {
		return directory.Resolve(ctx, src, b.Logger)
	}
	if cfg.DirectoryRetries == 0 {
		return once, nil
	}

	backoff := &retry.Backoff{
		InitialDelay: config.DefaultDirectoryBackoff,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  cfg.DirectoryRetries + 1,
		Jitter:       true,
		Retryable:    ferr.IsRetryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			b.Logger.Warn("directory attempt %d failed, retrying in %s: %v", attempt, wait.Truncate(time.Millisecond), err)
		},
	}
	return func(ctx context.Context) ([]int, error) {
		var endpoints []int
		err := backoff.Do(ctx, func(int) error {
			var err error
			endpoints, err = once(ctx)
			return err
		})
		return endpoints, err
	}, nil
}
