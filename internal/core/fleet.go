package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"fleetctl/internal/census"
	"fleetctl/internal/dispatch"
	"fleetctl/internal/distribute"
	ferr "fleetctl/internal/errors"
	"fleetctl/internal/monitor"
	"fleetctl/util"
)

// ResolveFunc returns the current endpoint list.
type ResolveFunc func(ctx context.Context) ([]int, error)

// Fleet is what every mode shares: a way to find endpoints and a way
// to reach them.  The transport is closed when the mode returns.
type Fleet struct {
	Resolve    ResolveFunc
	Dispatcher *dispatch.Dispatcher
	Logger     *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (f *Fleet) stdout() io.Writer {
	if f.Stdout != nil {
		return f.Stdout
	}
	return os.Stdout
}

func (f *Fleet) close() {
	if tr := f.Dispatcher.Transport; tr != nil {
		tr.Close() //nolint:errcheck
	}
}

func (f *Fleet) resolve(ctx context.Context) ([]int, error) {
	endpoints, err := f.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	f.Logger.Info("%d endpoint(s)", len(endpoints))
	return endpoints, nil
}

// ── run ──────────────────────────────────────────────────────────────

// RunMode executes one command on every endpoint and prints each
// endpoint's output.  Endpoint failures do not fail the mode.
type RunMode struct {
	Fleet
	Command string
}

// Run implements Mode.
func (m *RunMode) Run(ctx context.Context) error {
	defer m.close()

	endpoints, err := m.resolve(ctx)
	if err != nil {
		return err
	}
	results, summary, err := m.Dispatcher.RunArbitrary(ctx, m.Command, endpoints)
	if err != nil {
		return err
	}

	out := m.stdout()
	for _, r := range results {
		writeResult(out, r)
	}
	fmt.Fprintf(out, "summary: %s\n", summary)
	return nil
}

func writeResult(w io.Writer, r dispatch.Result) {
	if r.Succeeded {
		fmt.Fprintf(w, "== endpoint %d ==\n", r.Endpoint)
	} else {
		fmt.Fprintf(w, "== endpoint %d: %v ==\n", r.Endpoint, kindOf(r.Err))
	}
	if r.Output != "" {
		io.WriteString(w, r.Output) //nolint:errcheck
		if !strings.HasSuffix(r.Output, "\n") {
			io.WriteString(w, "\n") //nolint:errcheck
		}
	}
}

func kindOf(err error) error {
	if ferr.IsRemoteFailure(err) {
		var ee *ferr.EndpointError
		if ferr.As(err, &ee) && ee.ExitStatus != 0 {
			return fmt.Errorf("%w (exit %d)", ferr.ErrRemoteCommandFailed, ee.ExitStatus)
		}
		return ferr.ErrRemoteCommandFailed
	}
	return ferr.ErrEndpointUnreachable
}

// ── copy ─────────────────────────────────────────────────────────────

// CopyMode distributes one file.  The mode fails with an ExitError
// whose code is the number of failed endpoints, capped at MaxExit.
type CopyMode struct {
	Fleet
	LocalPath  string
	RemotePath string
	MaxExit    int
}

// Run implements Mode.
func (m *CopyMode) Run(ctx context.Context) error {
	defer m.close()

	if err := distribute.Validate(m.LocalPath, m.RemotePath); err != nil {
		return err
	}
	endpoints, err := m.resolve(ctx)
	if err != nil {
		return err
	}

	d := &distribute.Distributor{Dispatcher: m.Dispatcher}
	results, summary, err := d.Distribute(ctx, m.LocalPath, m.RemotePath, endpoints)
	if err != nil {
		return err
	}

	out := m.stdout()
	for _, r := range results {
		if !r.Succeeded {
			fmt.Fprintf(out, "endpoint %d: %v\n", r.Endpoint, r.Err)
		}
	}
	fmt.Fprintf(out, "summary: %s\n", summary)

	if code := distribute.ExitCode(summary, m.MaxExit); code > 0 {
		return &ferr.ExitError{Code: code}
	}
	return nil
}

// ── census ───────────────────────────────────────────────────────────

// CensusMode takes a single census and prints the report.
type CensusMode struct {
	Fleet
	Census *census.Census
	Port   int
}

// Run implements Mode.
func (m *CensusMode) Run(ctx context.Context) error {
	defer m.close()

	endpoints, err := m.resolve(ctx)
	if err != nil {
		return err
	}
	r := m.Census.Run(ctx, m.Port, endpoints)
	return r.Report(m.stdout())
}

// ── monitor ──────────────────────────────────────────────────────────

// MonitorMode resolves the fleet once, opens a fresh log in LogDir and
// samples until cancelled.
type MonitorMode struct {
	Fleet
	Census  *census.Census
	Monitor monitor.Monitor // Sample, Sink and Stdout are filled in by Run
	Port    int
	LogDir  string
}

// Run implements Mode.
func (m *MonitorMode) Run(ctx context.Context) error {
	defer m.close()

	endpoints, err := m.resolve(ctx)
	if err != nil {
		return err
	}

	now := m.Monitor.Now
	if now == nil {
		now = timeNow
	}
	start := now()
	f, err := monitor.OpenLog(m.LogDir, m.Port, start)
	if err != nil {
		return err
	}
	defer f.Close()
	m.Logger.Info("monitor: port %d every %s, logging to %s", m.Port, m.Monitor.Interval, f.Name())

	mon := m.Monitor
	mon.Sample = func(ctx context.Context) *census.Result {
		return m.Census.Run(ctx, m.Port, endpoints)
	}
	mon.Start = start
	mon.Sink = f
	mon.Stdout = m.stdout()
	mon.Logger = m.Logger
	return mon.Run(ctx)
}
