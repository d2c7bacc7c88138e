package core

import (
	"fmt"
	"strings"

	"fleetctl/config"
	"fleetctl/internal/directory"
	ferr "fleetctl/internal/errors"
)

// Kind selects the mode an invocation runs.
type Kind int

const (
	KindRun Kind = iota
	KindCopy
	KindCensus
	KindMonitor
)

func (k Kind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindCopy:
		return "copy"
	case KindCensus:
		return "census"
	case KindMonitor:
		return "monitor"
	}
	return "unknown"
}

// Invocation is the positional part of a command line.
type Invocation struct {
	Kind Kind

	Source  string // KindRun: endpoint source spec, "" for the configured one
	Command string // KindRun

	LocalPath  string // KindCopy
	RemotePath string // KindCopy

	Port int // KindCensus, KindMonitor; 0 for the configured port
}

// ParseArgs classifies positional arguments:
//
//	copy_file <local> <remote>
//	count-<port> [continuous]      (plain "count" uses the configured port)
//	<endpoints-source> <command-text...>
//	<command-text...>              when haveSource is true
//
// With a configured source, a first word that is not shaped like a
// source starts the command text.
// Malformed input returns an error wrapping ErrUsage.
func ParseArgs(args []string, haveSource bool) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, usage("missing arguments")
	}

	switch first := args[0]; {
	case first == "copy_file":
		if len(args) != 3 {
			return Invocation{}, usage("copy_file takes <localPath> <remotePath>")
		}
		return Invocation{Kind: KindCopy, LocalPath: args[1], RemotePath: args[2]}, nil

	case first == "count" || strings.HasPrefix(first, "count-"):
		inv := Invocation{Kind: KindCensus}
		if p, ok := strings.CutPrefix(first, "count-"); ok {
			port, err := config.ParsePort(p)
			if err != nil {
				return Invocation{}, usage("bad census port in %q: %v", first, err)
			}
			inv.Port = port
		}
		switch {
		case len(args) == 1:
		case len(args) == 2 && args[1] == "continuous":
			inv.Kind = KindMonitor
		default:
			return Invocation{}, usage("%s takes only an optional \"continuous\"", first)
		}
		return inv, nil
	}

	if len(args) == 1 {
		if !haveSource {
			return Invocation{}, usage("missing command text")
		}
		return Invocation{Kind: KindRun, Command: args[0]}, nil
	}
	if haveSource && !directory.LooksLikeSource(args[0]) {
		return Invocation{Kind: KindRun, Command: strings.Join(args, " ")}, nil
	}
	return Invocation{Kind: KindRun, Source: args[0], Command: strings.Join(args[1:], " ")}, nil
}

func usage(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ferr.ErrUsage, fmt.Sprintf(format, args...))
}
