// fleetctl - run commands, copy files and count connections across a
// fleet of SSH endpoints behind one gateway.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"fleetctl/cmd"
	ferr "fleetctl/internal/errors"
)

var stderr io.Writer = os.Stderr

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(exitCode(cmd.Execute(ctx, os.Args[1:])))
}

// exitCode prints err and maps it to a process status: 2 for usage
// errors, the carried code for ExitError, 1 for anything else.
// Fatal errors stop the run before any endpoint is contacted.
func exitCode(err error) int {
	var exit *ferr.ExitError
	switch {
	case err == nil:
		return 0
	case ferr.Is(err, ferr.ErrUsage):
		return 2
	case ferr.As(err, &exit):
		if exit.Err != nil {
			fmt.Fprintf(stderr, "fleetctl: %v\n", exit.Err)
		}
		return exit.Code
	case ferr.IsFatal(err):
		fmt.Fprintf(stderr, "fleetctl: %v (no endpoint was contacted)\n", err)
		return 1
	default:
		fmt.Fprintf(stderr, "fleetctl: %v\n", err)
		return 1
	}
}
