// Package monitor repeats a connection census on an interval and
// appends every sample to a log.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fleetctl/internal/census"
	"fleetctl/internal/metrics"
	"fleetctl/util"
)

const (
	// TimestampFormat starts every sample block.
	TimestampFormat = "2006-01-02T15:04:05"

	fileStampFormat = "20060102-150405"
)

// Monitor samples until its context is cancelled.
//
// In the default mode the interval is measured from the end of one
// sample, so the period is census time plus Interval.  With FixedRate
// samples start on a ticker anchored at Run's start; a sample that
// overruns the interval delays the next one instead of stacking.
type Monitor struct {
	Sample    func(ctx context.Context) *census.Result
	Interval  time.Duration
	FixedRate bool

	Sink   io.Writer // append-only log, flushed after each block when it has Sync
	Stdout io.Writer

	// Start stamps the header.  Zero means Now() when Run begins.
	Start time.Time

	Logger  *util.Logger // nil discards
	Metrics *metrics.Collector
	Now     func() time.Time
}

type syncer interface {
	Sync() error
}

// Run writes the header and then samples until ctx ends.  A sample in
// progress at cancellation is discarded.  Cancellation is not an
// error; failing to write the log is.
func (m *Monitor) Run(ctx context.Context) error {
	now := m.Now
	if now == nil {
		now = time.Now
	}

	start := m.Start
	if start.IsZero() {
		start = now()
	}
	if err := m.emit(Header(start)); err != nil {
		return err
	}

	var tick <-chan time.Time
	if m.FixedRate {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		at := now()
		m.log().Verbose("monitor: sampling")
		r := m.Sample(ctx)
		if ctx.Err() != nil {
			m.log().Info("monitor: stopped")
			return nil
		}

		block, err := Block(at, r)
		if err != nil {
			return err
		}
		if err := m.emit(block); err != nil {
			return err
		}
		m.Metrics.CensusSample()

		if !m.wait(ctx, tick) {
			m.log().Info("monitor: stopped")
			return nil
		}
	}
}

func (m *Monitor) log() *util.Logger {
	if m.Logger == nil {
		return util.NopLogger()
	}
	return m.Logger
}

// wait blocks until the next sample is due.  It returns false if ctx
// ended first.
func (m *Monitor) wait(ctx context.Context, tick <-chan time.Time) bool {
	if tick == nil {
		timer := time.NewTimer(m.Interval)
		defer timer.Stop()
		tick = timer.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-tick:
		return true
	}
}

// emit writes s to stdout and to the sink, then flushes the sink.
func (m *Monitor) emit(s string) error {
	if m.Stdout != nil {
		io.WriteString(m.Stdout, s) //nolint:errcheck
	}
	if m.Sink == nil {
		return nil
	}
	if _, err := io.WriteString(m.Sink, s); err != nil {
		return fmt.Errorf("monitor log: %w", err)
	}
	if f, ok := m.Sink.(syncer); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("monitor log: %w", err)
		}
	}
	return nil
}

// Header is the first line of every monitor log.  It uses the same
// local, zone-less stamp as the sample blocks.
func Header(start time.Time) string {
	return "# census monitor started " + start.Format(TimestampFormat) + "\n"
}

// Block renders one sample: timestamp line, report, blank line.
func Block(at time.Time, r *census.Result) (string, error) {
	var b strings.Builder
	b.WriteString(at.Format(TimestampFormat))
	b.WriteByte('\n')
	if err := r.Report(&b); err != nil {
		return "", err
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// LogName is the log file name for a monitor on port started at start.
func LogName(port int, start time.Time) string {
	return fmt.Sprintf("census-%d-%s.log", port, start.Format(fileStampFormat))
}

// OpenLog creates a fresh log in dir.  It refuses to reuse an existing
// file, so an earlier run's log is never truncated or mixed into.
func OpenLog(dir string, port int, start time.Time) (*os.File, error) {
	path := filepath.Join(dir, LogName(port, start))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("monitor log: %w", err)
	}
	return f, nil
}
