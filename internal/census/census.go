// Package census counts active connections on a target port across the
// fleet and aggregates them by remote address.
package census

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"fleetctl/internal/action"
	"fleetctl/internal/dispatch"
	ferr "fleetctl/internal/errors"
	"fleetctl/util"
)

// Status is how an endpoint fared during a census.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnreachable Status = "unreachable"
	StatusFailed      Status = "failed" // reached, but the listing command failed
)

// EndpointCensus is one endpoint's contribution.  A reachable endpoint
// with no matching connections has StatusOK and zero Connections.
type EndpointCensus struct {
	Endpoint    int
	Status      Status
	Connections int
	Err         error
}

// Result aggregates one census pass.  The sum of PerIP always equals
// Total.
type Result struct {
	Port      int
	Total     int
	PerIP     map[string]int
	Endpoints []EndpointCensus
}

// IPCount is one row of the per-address table.
type IPCount struct {
	IP    string
	Count int
}

// Census runs the connection listing through a Dispatcher.
type Census struct {
	Dispatcher *dispatch.Dispatcher

	// Command returns the remote listing command for port.
	Command func(port int) string
}

// Run takes one census of port across endpoints.  Endpoint failures
// are recorded in the result, never returned.
func (c *Census) Run(ctx context.Context, port int, endpoints []int) *Result {
	cmd := &action.RemoteCommand{Command: c.Command(port)}
	results, _ := c.Dispatcher.Dispatch(ctx, endpoints, cmd)
	return Aggregate(port, results)
}

// Aggregate folds dispatch results into a census Result.
func Aggregate(port int, results []dispatch.Result) *Result {
	r := &Result{Port: port, PerIP: make(map[string]int)}
	for _, res := range results {
		ec := EndpointCensus{Endpoint: res.Endpoint, Status: StatusOK, Err: res.Err}
		switch {
		case res.Succeeded:
			for _, ip := range ParseOutput(res.Output, port) {
				r.PerIP[ip]++
				ec.Connections++
			}
			r.Total += ec.Connections
		case ferr.IsRemoteFailure(res.Err):
			ec.Status = StatusFailed
		default:
			ec.Status = StatusUnreachable
		}
		r.Endpoints = append(r.Endpoints, ec)
	}
	return r
}

// ParseOutput returns one address per output line that references port.
func ParseOutput(output string, port int) []string {
	var ips []string
	for _, line := range util.SplitLines(output) {
		if ip, ok := ParseLine(line, port); ok {
			ips = append(ips, ip)
		}
	}
	return ips
}

// ParseLine scans the whitespace-separated fields of line for the
// first one ending in ":<port>" and returns it without that suffix.
// Only the first match counts, so on a line holding both a local and a
// remote address with the same port the local one is reported.
func ParseLine(line string, port int) (string, bool) {
	suffix := ":" + strconv.Itoa(port)
	for _, field := range strings.Fields(line) {
		if ip, ok := strings.CutSuffix(field, suffix); ok && ip != "" {
			return ip, true
		}
	}
	return "", false
}

// Sorted returns the per-address counts by count descending, ties by
// address ascending.
func (r *Result) Sorted() []IPCount {
	rows := make([]IPCount, 0, len(r.PerIP))
	for ip, n := range r.PerIP {
		rows = append(rows, IPCount{IP: ip, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].IP < rows[j].IP
	})
	return rows
}

// Count returns how many endpoints ended with status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, ec := range r.Endpoints {
		if ec.Status == s {
			n++
		}
	}
	return n
}

// Report writes the human-readable census block.
func (r *Result) Report(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "port %d: %d connection(s) from %d address(es)\n", r.Port, r.Total, len(r.PerIP))

	rows := r.Sorted()
	width := 0
	for _, row := range rows {
		if len(row.IP) > width {
			width = len(row.IP)
		}
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %-*s  %d\n", width, row.IP, row.Count)
	}

	fmt.Fprintf(&b, "endpoints: %d ok, %d unreachable, %d failed\n",
		r.Count(StatusOK), r.Count(StatusUnreachable), r.Count(StatusFailed))
	for _, ec := range r.Endpoints {
		switch ec.Status {
		case StatusOK:
			fmt.Fprintf(&b, "  endpoint %d: %d\n", ec.Endpoint, ec.Connections)
		default:
			fmt.Fprintf(&b, "  endpoint %d: %s\n", ec.Endpoint, ec.Status)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
