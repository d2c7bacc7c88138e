// Package action defines what a dispatch pass does at each endpoint.
// An Action is handed the transport and one endpoint and reports the
// captured output plus an error classified by the transport, which
// keeps the dispatcher ignorant of what is being run.
package action

import (
	"context"
	"fmt"

	"fleetctl/internal/transport"
)

// Action runs against a single endpoint.
type Action interface {
	// Name is a short label used in progress lines ("exec", "copy").
	Name() string

	// Run performs the action on endpoint.  A nil error means success.
	Run(ctx context.Context, tr transport.Transport, endpoint int) (string, error)
}

// RemoteCommand runs Command verbatim on every endpoint.  The text is
// opaque: shell metacharacters are interpreted by the remote side.
type RemoteCommand struct {
	Command string
}

// Name implements Action.
func (c *RemoteCommand) Name() string { return "exec" }

// Run implements Action.
func (c *RemoteCommand) Run(ctx context.Context, tr transport.Transport, endpoint int) (string, error) {
	return tr.Exec(ctx, endpoint, c.Command)
}

// CopyFile writes LocalPath to RemotePath on every endpoint.  Bytes,
// when non-nil, is incremented by the size of each successful copy.
type CopyFile struct {
	LocalPath  string
	RemotePath string
	Bytes      func(n int64)
}

// Name implements Action.
func (c *CopyFile) Name() string { return "copy" }

// Run implements Action.  The output is a one-line description of the
// transfer.
func (c *CopyFile) Run(ctx context.Context, tr transport.Transport, endpoint int) (string, error) {
	n, err := tr.Copy(ctx, endpoint, c.LocalPath, c.RemotePath)
	if err != nil {
		return "", err
	}
	if c.Bytes != nil {
		c.Bytes(n)
	}
	return fmt.Sprintf("%d bytes -> %s", n, c.RemotePath), nil
}
