// Package transporttest provides an in-memory transport.Transport for
// tests.
package transporttest

import (
	"context"
	"sync"

	ferr "fleetctl/internal/errors"
)

// Call records one action the fake received.
type Call struct {
	Op         string // "exec" or "copy"
	Endpoint   int
	Command    string
	LocalPath  string
	RemotePath string
}

// Response is the canned outcome for one endpoint.
type Response struct {
	Output      string
	Unreachable bool
	ExitStatus  int // non-zero → remote command failure
}

// Fake answers from Responses, defaulting to success with empty output.
// ExecFn and CopyFn, when set, take precedence.  Safe for concurrent use.
type Fake struct {
	Responses map[int]Response
	ExecFn    func(ctx context.Context, endpoint int, command string) (string, error)
	CopyFn    func(ctx context.Context, endpoint int, localPath, remotePath string) (int64, error)

	mu     sync.Mutex
	calls  []Call
	closed bool
}

// Exec implements transport.Transport.
func (f *Fake) Exec(ctx context.Context, endpoint int, command string) (string, error) {
	f.record(Call{Op: "exec", Endpoint: endpoint, Command: command})
	if f.ExecFn != nil {
		return f.ExecFn(ctx, endpoint, command)
	}
	r := f.Responses[endpoint]
	return r.Output, r.err(endpoint, "exec")
}

// Copy implements transport.Transport.
func (f *Fake) Copy(ctx context.Context, endpoint int, localPath, remotePath string) (int64, error) {
	f.record(Call{Op: "copy", Endpoint: endpoint, LocalPath: localPath, RemotePath: remotePath})
	if f.CopyFn != nil {
		return f.CopyFn(ctx, endpoint, localPath, remotePath)
	}
	r := f.Responses[endpoint]
	if err := r.err(endpoint, "copy"); err != nil {
		return 0, err
	}
	return int64(len(r.Output)), nil
}

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Calls returns a copy of every call received so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (r Response) err(endpoint int, op string) error {
	switch {
	case r.Unreachable:
		return ferr.Unreachable(endpoint, op, nil)
	case r.ExitStatus != 0:
		return ferr.RemoteFailed(endpoint, op, r.ExitStatus, nil)
	}
	return nil
}
