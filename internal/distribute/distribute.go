// Package distribute copies one local artifact to the same remote path
// on every endpoint.
package distribute

import (
	"context"
	"os"

	"fleetctl/internal/action"
	"fleetctl/internal/dispatch"
	ferr "fleetctl/internal/errors"
)

// Distributor wraps a Dispatcher with up-front argument checks.
type Distributor struct {
	Dispatcher *dispatch.Dispatcher
}

// Distribute validates the arguments, then runs one copy pass.  An
// invalid argument is returned before any endpoint is contacted; after
// that, per-endpoint failures only show up in the summary.
func (d *Distributor) Distribute(ctx context.Context, localPath, remotePath string, endpoints []int) ([]dispatch.Result, dispatch.Summary, error) {
	if err := Validate(localPath, remotePath); err != nil {
		return nil, dispatch.Summary{}, err
	}

	copyFile := &action.CopyFile{
		LocalPath:  localPath,
		RemotePath: remotePath,
		Bytes:      d.Dispatcher.Metrics.BytesCopied,
	}
	results, summary := d.Dispatcher.Dispatch(ctx, endpoints, copyFile)
	return results, summary, nil
}

// Validate checks that localPath is a readable regular file and that
// remotePath is set.
func Validate(localPath, remotePath string) error {
	if localPath == "" {
		return ferr.InvalidArgument("local path is empty")
	}
	if remotePath == "" {
		return ferr.InvalidArgument("remote path is empty")
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return ferr.InvalidArgument("%s: %v", localPath, err)
	}
	if !fi.Mode().IsRegular() {
		return ferr.InvalidArgument("%s: not a regular file", localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return ferr.InvalidArgument("%s: %v", localPath, err)
	}
	return f.Close()
}

// ExitCode maps a summary to the process status: the number of failed
// endpoints, capped at limit.
func ExitCode(s dispatch.Summary, limit int) int {
	if s.Failed > limit {
		return limit
	}
	return s.Failed
}
