// Package dispatch runs one action against every endpoint of a fleet
// and collects per-endpoint results.  A failing endpoint never stops
// the pass; every endpoint ends up in exactly one result.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetctl/internal/action"
	ferr "fleetctl/internal/errors"
	"fleetctl/internal/metrics"
	"fleetctl/internal/transport"
	"fleetctl/util"
)

// Result is the outcome for one endpoint.
type Result struct {
	Endpoint  int
	Succeeded bool
	Output    string
	Err       error // *errors.EndpointError when Succeeded is false
}

// Summary counts outcomes.  Succeeded+Failed always equals the number
// of endpoints dispatched; Unreachable+RemoteFailed equals Failed.
type Summary struct {
	Succeeded    int
	Failed       int
	Unreachable  int
	RemoteFailed int
}

// Total is the number of endpoints the summary covers.
func (s Summary) Total() int { return s.Succeeded + s.Failed }

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d failed (%d unreachable, %d remote failure)",
		s.Succeeded, s.Failed, s.Unreachable, s.RemoteFailed)
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		if r.Succeeded {
			s.Succeeded++
			continue
		}
		s.Failed++
		if ferr.IsRemoteFailure(r.Err) {
			s.RemoteFailed++
		} else {
			s.Unreachable++
		}
	}
	return s
}

// Dispatcher runs actions across endpoints through a Transport.
type Dispatcher struct {
	Transport transport.Transport

	// Logger receives one progress line per endpoint.  Nil discards.
	Logger *util.Logger
	// Metrics may be nil.
	Metrics *metrics.Collector

	// Timeout bounds each endpoint action.  Zero means no limit.
	Timeout time.Duration

	// Parallel is the number of endpoints in flight at once.  Values
	// below 2 keep the pass strictly sequential.
	Parallel int
}

// Dispatch runs act against every endpoint and returns the results in
// endpoint order together with their summary.  Once ctx is cancelled
// no new endpoint is contacted; the remaining ones are recorded as
// unreachable with the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoints []int, act action.Action) ([]Result, Summary) {
	results := make([]Result, len(endpoints))

	if d.Parallel <= 1 {
		for i, ep := range endpoints {
			results[i] = d.runOne(ctx, ep, act)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(d.Parallel)
		for i, ep := range endpoints {
			if ctx.Err() != nil {
				results[i] = d.skipped(ctx, ep, act)
				continue
			}
			i, ep := i, ep
			g.Go(func() error {
				results[i] = d.runOne(ctx, ep, act)
				return nil
			})
		}
		g.Wait() //nolint:errcheck // workers never return errors
	}

	summary := Summarize(results)
	d.log().Verbose("%s: %d endpoint(s): %s", act.Name(), len(endpoints), summary)
	return results, summary
}

func (d *Dispatcher) runOne(ctx context.Context, ep int, act action.Action) Result {
	if ctx.Err() != nil {
		return d.skipped(ctx, ep, act)
	}

	d.Metrics.EndpointStarted()
	ectx, cancel := d.endpointContext(ctx)
	defer cancel()

	out, err := act.Run(ectx, d.Transport, ep)
	if err == nil {
		d.Metrics.EndpointSucceeded()
		d.log().Progress(true, "endpoint %d: %s ok", ep, act.Name())
		return Result{Endpoint: ep, Succeeded: true, Output: out}
	}

	err = normalize(ectx, ep, act.Name(), err)
	if ferr.IsRemoteFailure(err) {
		d.Metrics.EndpointRemoteFailed(err.Error())
	} else {
		d.Metrics.EndpointUnreachable(err.Error())
	}
	d.log().Progress(false, "%v", err)
	return Result{Endpoint: ep, Output: out, Err: err}
}

func (d *Dispatcher) endpointContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout > 0 {
		return context.WithTimeout(ctx, d.Timeout)
	}
	return context.WithCancel(ctx)
}

func (d *Dispatcher) skipped(ctx context.Context, ep int, act action.Action) Result {
	err := ferr.Unreachable(ep, act.Name(), ctx.Err())
	d.log().Progress(false, "%v (not contacted)", err)
	return Result{Endpoint: ep, Err: err}
}

func (d *Dispatcher) log() *util.Logger {
	if d.Logger == nil {
		return util.NopLogger()
	}
	return d.Logger
}

// normalize makes sure every failure carries an endpoint error kind.
// Anything the transport did not classify counts as unreachable.
func normalize(ctx context.Context, ep int, op string, err error) error {
	if ferr.IsUnreachable(err) || ferr.IsRemoteFailure(err) {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%w: %v", ferr.ErrTimeout, err)
	}
	return ferr.Unreachable(ep, op, err)
}
