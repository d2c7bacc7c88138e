// Package directory resolves the live endpoint list.  A Source yields
// raw newline-separated text; Resolve keeps purely numeric lines,
// deduplicates them in order, and treats an empty result as fatal.
package directory

import (
	"context"
	"strings"

	"fleetctl/config"
	ferr "fleetctl/internal/errors"
	"fleetctl/util"
)

// Source is an external endpoint directory.
type Source interface {
	// Read returns the directory listing, one identifier per line.
	Read(ctx context.Context) (string, error)

	// String describes the source for messages.
	String() string
}

// Resolve queries src and returns the endpoints in listing order.
// Non-numeric lines and out-of-range ports are dropped silently; an
// unreachable source or an empty result fails with
// ErrDirectoryUnavailable.  Nothing is cached: callers re-resolve on
// every invocation.
func Resolve(ctx context.Context, src Source, logger *util.Logger) ([]int, error) {
	text, err := src.Read(ctx)
	if err != nil {
		return nil, ferr.Directory("%s: %v", src, err)
	}

	endpoints, dropped := Parse(text)
	if dropped > 0 {
		logger.Debug("directory: %s: ignored %d non-conforming line(s)", src, dropped)
	}
	if len(endpoints) == 0 {
		return nil, ferr.Directory("%s returned no valid endpoints", src)
	}
	logger.Verbose("directory: %d endpoint(s) from %s", len(endpoints), src)
	return endpoints, nil
}

// Parse extracts endpoints from a listing.  It returns the endpoints
// in first-seen order and the number of non-blank lines rejected.
// Duplicates are collapsed without counting as rejected.
func Parse(text string) (endpoints []int, dropped int) {
	seen := make(map[int]bool)
	for _, line := range util.SplitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		port, ok := parseEndpoint(line)
		if !ok {
			dropped++
			continue
		}
		if seen[port] {
			continue
		}
		seen[port] = true
		endpoints = append(endpoints, port)
	}
	return endpoints, dropped
}

func parseEndpoint(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	port, err := config.ParsePort(s)
	return port, err == nil
}
