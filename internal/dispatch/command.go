package dispatch

import (
	"context"
	"strings"

	"fleetctl/internal/action"
	ferr "fleetctl/internal/errors"
)

// RunArbitrary executes command verbatim on every endpoint.
func (d *Dispatcher) RunArbitrary(ctx context.Context, command string, endpoints []int) ([]Result, Summary, error) {
	if strings.TrimSpace(command) == "" {
		return nil, Summary{}, ferr.InvalidArgument("empty command")
	}
	results, summary := d.Dispatch(ctx, endpoints, &action.RemoteCommand{Command: command})
	return results, summary, nil
}
