package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ferr "fleetctl/internal/errors"
	"fleetctl/util"
)

// SSHConfig holds the gateway address and the credential shared by
// every endpoint.
type SSHConfig struct {
	User          string
	Host          string // gateway host
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

// SSHTransport implements [Transport] by opening one SSH connection to
// gateway:endpoint per action.  Authentication methods and the host
// key callback are built lazily on first use and shared afterwards,
// including by the gateway directory query.
type SSHTransport struct {
	config *SSHConfig
	creds  *credentials
	logger *util.Logger

	once     sync.Once
	client   *ssh.ClientConfig
	setupErr error
}

var _ Transport = (*SSHTransport)(nil)

// NewSSHTransport returns a transport for the given gateway.  No
// connection is made until the first Exec or Copy.
func NewSSHTransport(cfg *SSHConfig, logger *util.Logger) *SSHTransport {
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTransport{config: cfg, creds: newCredentials(cfg), logger: logger}
}

func (t *SSHTransport) clientConfig() (*ssh.ClientConfig, error) {
	t.once.Do(func() {
		methods, err := t.creds.methods()
		if err != nil {
			t.setupErr = fmt.Errorf("%w: %v", ferr.ErrAuthFailed, err)
			return
		}
		hk, err := endpointHostKeys(t.config)
		if err != nil {
			t.setupErr = err
			return
		}
		t.client = &ssh.ClientConfig{
			User:            t.config.User,
			Auth:            methods,
			HostKeyCallback: hk,
			Timeout:         t.config.ConnTimeout,
		}
	})
	return t.client, t.setupErr
}

// dial connects to one endpoint.  The handshake honours ctx's deadline.
func (t *SSHTransport) dial(ctx context.Context, endpoint int) (*ssh.Client, error) {
	cc, err := t.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := util.FormatAddr(t.config.Host, endpoint)
	t.logger.Debug("ssh: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl) //nolint:errcheck
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		return nil, ferr.WrapSSH("handshake", t.config.Host, endpoint, err)
	}
	conn.SetDeadline(time.Time{}) //nolint:errcheck
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Exec runs command on the endpoint.
func (t *SSHTransport) Exec(ctx context.Context, endpoint int, command string) (string, error) {
	var out bytes.Buffer
	err := t.run(ctx, endpoint, "exec", func(sess *ssh.Session) error {
		sess.Stdout = &out
		sess.Stderr = &out
		return sess.Run(command)
	})
	return out.String(), err
}

// Copy streams localPath into remotePath through `cat`.  The remote
// file is created or truncated.
func (t *SSHTransport) Copy(ctx context.Context, endpoint int, localPath, remotePath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, ferr.InvalidArgument("open %s: %v", localPath, err)
	}
	defer f.Close()

	counter := &countingReader{r: f}
	var stderr bytes.Buffer
	err = t.run(ctx, endpoint, "copy", func(sess *ssh.Session) error {
		sess.Stdin = counter
		sess.Stderr = &stderr
		return sess.Run("cat > " + util.ShellQuote(remotePath))
	})
	if err != nil && stderr.Len() > 0 {
		t.logger.Verbose("endpoint %d: copy stderr: %s", endpoint, bytes.TrimSpace(stderr.Bytes()))
	}
	return counter.n, err
}

// Close is a no-op; connections live only for one action.
func (t *SSHTransport) Close() error { return nil }

// run dials the endpoint, opens a session and hands it to fn.  When
// ctx ends first the client is closed, which unblocks fn, and the
// endpoint is recorded as unreachable.
func (t *SSHTransport) run(ctx context.Context, endpoint int, op string, fn func(*ssh.Session) error) error {
	client, err := t.dial(ctx, endpoint)
	if err != nil {
		return ferr.Unreachable(endpoint, op, contextCause(ctx, err))
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return ferr.Unreachable(endpoint, op, ferr.WrapSSH("session", t.config.Host, endpoint, err))
	}
	defer sess.Close()

	done := make(chan error, 1)
	go func() { done <- fn(sess) }()

	finished, err := await(ctx, done, func() { client.Close() })
	if !finished {
		return ferr.Unreachable(endpoint, op, contextCause(ctx, err))
	}
	return classify(endpoint, op, err)
}

// await returns fn's result from done, or ctx's error after abort has
// unblocked fn.  A result already in done wins over a context that
// ended at the same moment.
func await(ctx context.Context, done <-chan error, abort func()) (bool, error) {
	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return true, err
	default:
	}
	abort()
	<-done
	return false, ctx.Err()
}

// classify maps a session error onto the endpoint error kinds.
func classify(endpoint int, op string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return ferr.RemoteFailed(endpoint, op, exitErr.ExitStatus(), nil)
	}
	return ferr.Unreachable(endpoint, op, err)
}

// contextCause tags deadline expiry as a timeout.
func contextCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ferr.ErrTimeout, err)
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
