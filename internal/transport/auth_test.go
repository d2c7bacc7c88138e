package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ferr "fleetctl/internal/errors"
	"fleetctl/util"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(keyPath, []byte(testKeyPEM), 0o600); err != nil {
		t.Fatal(err)
	}
	return keyPath
}

// startPasswordEndpoint is startEndpoint with password authentication.
func startPasswordEndpoint(t *testing.T, password string) int {
	t.Helper()

	signer, err := ssh.ParsePrivateKey([]byte(testKeyPEM))
	if err != nil {
		t.Fatalf("bad test key: %v", err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, got []byte) (*ssh.Permissions, error) {
			if string(got) != password {
				return nil, errors.New("wrong password")
			}
			return nil, nil
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg, func(string, ssh.Channel) uint32 { return 0 })
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestCredentials_ExplicitKey(t *testing.T) {
	methods, err := newCredentials(&SSHConfig{KeyPath: writeTestKey(t)}).methods()
	if err != nil {
		t.Fatalf("methods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

func TestCredentials_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	if _, err := newCredentials(&SSHConfig{KeyPath: "/nonexistent/key"}).methods(); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestCredentials_PasswordIsLazy(t *testing.T) {
	c := newCredentials(&SSHConfig{PromptPass: true})
	c.prompt = func(string) ([]byte, error) {
		t.Fatal("password asked before any server wanted it")
		return nil, nil
	}
	methods, err := c.methods()
	if err != nil || len(methods) != 1 {
		t.Fatalf("methods = %d, err = %v", len(methods), err)
	}
}

func TestCredentials_PasswordAskedOnce(t *testing.T) {
	var asked atomic.Int32
	c := newCredentials(&SSHConfig{User: "fleet", Host: "gw", PromptPass: true})
	c.prompt = func(label string) ([]byte, error) {
		asked.Add(1)
		if !strings.Contains(label, "fleet@gw") {
			t.Errorf("label %q should name the gateway login", label)
		}
		return []byte("s3cret"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pass, err := c.password(); err != nil || pass != "s3cret" {
				t.Errorf("password() = %q, %v", pass, err)
			}
		}()
	}
	wg.Wait()

	if n := asked.Load(); n != 1 {
		t.Errorf("prompted %d times, want 1", n)
	}
}

func TestCredentials_PasswordError(t *testing.T) {
	c := newCredentials(&SSHConfig{PromptPass: true})
	c.prompt = func(string) ([]byte, error) { return nil, io.ErrUnexpectedEOF }
	if _, err := c.password(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected prompt error, got %v", err)
	}
	if _, err := c.password(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("second call should replay the error, got %v", err)
	}
}

// TestSSHTransport_OnePromptForAllEndpoints dials two endpoints with
// password auth and expects a single prompt.
func TestSSHTransport_OnePromptForAllEndpoints(t *testing.T) {
	first := startPasswordEndpoint(t, "s3cret")
	second := startPasswordEndpoint(t, "s3cret")

	tr := NewSSHTransport(&SSHConfig{
		User:        "fleet",
		Host:        "127.0.0.1",
		PromptPass:  true,
		ConnTimeout: 2 * time.Second,
	}, util.NewLogger(0))

	var asked atomic.Int32
	tr.creds.prompt = func(string) ([]byte, error) {
		asked.Add(1)
		return []byte("s3cret"), nil
	}

	for _, ep := range []int{first, second, first} {
		if _, err := tr.Exec(context.Background(), ep, "true"); err != nil {
			t.Fatalf("endpoint %d: %v", ep, err)
		}
	}
	if n := asked.Load(); n != 1 {
		t.Errorf("prompted %d times, want 1", n)
	}
}

func TestEndpointHostKeys_Insecure(t *testing.T) {
	cb, err := endpointHostKeys(&SSHConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestEndpointHostKeys_MissingFile(t *testing.T) {
	_, err := endpointHostKeys(&SSHConfig{StrictHostKey: true, KnownHosts: "/nonexistent/known_hosts"})
	if err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

func strictTransport(t *testing.T, knownHosts string) *SSHTransport {
	t.Helper()
	return NewSSHTransport(&SSHConfig{
		User:          "fleet",
		Host:          "127.0.0.1",
		KeyPath:       writeTestKey(t),
		StrictHostKey: true,
		KnownHosts:    knownHosts,
		ConnTimeout:   2 * time.Second,
	}, util.NewLogger(0))
}

func TestEndpointHostKeys_KnownEndpoint(t *testing.T) {
	port := startEndpoint(t, func(string, ssh.Channel) uint32 { return 0 })

	signer, err := ssh.ParsePrivateKey([]byte(testKeyPEM))
	if err != nil {
		t.Fatal(err)
	}
	entry := knownhosts.Normalize(util.FormatAddr("127.0.0.1", port))
	if !strings.HasPrefix(entry, "[127.0.0.1]:") {
		t.Fatalf("unexpected known_hosts form %q", entry)
	}
	kh := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{entry}, signer.PublicKey()) + "\n"
	if err := os.WriteFile(kh, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := strictTransport(t, kh).Exec(context.Background(), port, "true"); err != nil {
		t.Fatalf("known endpoint rejected: %v", err)
	}
}

func TestEndpointHostKeys_UnknownEndpointHint(t *testing.T) {
	port := startEndpoint(t, func(string, ssh.Channel) uint32 { return 0 })

	kh := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(kh, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := strictTransport(t, kh).Exec(context.Background(), port, "true")
	if !ferr.IsUnreachable(err) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	for _, want := range []string{
		fmt.Sprintf("[127.0.0.1]:%d is not in %s", port, kh),
		fmt.Sprintf("ssh-keyscan -p %d 127.0.0.1", port),
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err, want)
		}
	}
}
