package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// credentials is the single login used for the gateway's directory
// query and for every endpoint behind it.  Interactive secrets are
// asked for at most once, by whichever connection needs them first,
// and replayed to all the others.
type credentials struct {
	cfg    *SSHConfig
	prompt func(label string) ([]byte, error)

	passOnce sync.Once
	pass     string
	passErr  error
}

func newCredentials(cfg *SSHConfig) *credentials {
	return &credentials{cfg: cfg, prompt: readSecret}
}

// readSecret asks on stderr and reads without echo.
func readSecret(label string) ([]byte, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return b, err
}

// methods lists auth methods in preference order: explicit key, agent,
// password.  With none configured it falls back to the agent and the
// usual key files.
func (c *credentials) methods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.cfg.KeyPath != "" {
		m, err := c.keyFile(c.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", c.cfg.KeyPath, err)
		}
		methods = append(methods, m)
	}

	if c.cfg.UseAgent {
		m, err := agentAuth()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, m)
	}

	if c.cfg.PromptPass {
		// The callback runs only when a server asks, so key-only
		// fleets never see the prompt.
		methods = append(methods, ssh.PasswordCallback(c.password))
	}

	if len(methods) == 0 {
		methods = c.discovered()
	}
	if len(methods) == 0 {
		return nil, errors.New("no SSH credentials for the fleet; use --ssh-key, --ssh-password or --ssh-agent")
	}
	return methods, nil
}

// password prompts on first use and returns the same answer afterwards.
func (c *credentials) password() (string, error) {
	c.passOnce.Do(func() {
		label := fmt.Sprintf("SSH password for %s@%s (gateway and all endpoints): ", c.cfg.User, c.cfg.Host)
		b, err := c.prompt(label)
		if err != nil {
			c.passErr = fmt.Errorf("reading password: %w", err)
			return
		}
		c.pass = string(b)
	})
	return c.pass, c.passErr
}

// keyFile loads a private key, asking for its passphrase if needed.
// Keys are loaded once per run, so the passphrase is asked once too.
func (c *credentials) keyFile(path string) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
	case errors.As(err, &missing):
		pass, perr := c.prompt(fmt.Sprintf("Enter passphrase for %s: ", path))
		if perr != nil {
			return nil, fmt.Errorf("reading passphrase: %w", perr)
		}
		if signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass); err != nil {
			return nil, fmt.Errorf("decrypting key: %w", err)
		}
	default:
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// discovered tries the agent and the common key files in ~/.ssh.
func (c *credentials) discovered() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := agentAuth(); err == nil {
		out = append(out, m)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if m, err := c.keyFile(p); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// ── host-key verification ────────────────────────────────────────────

// endpointHostKeys verifies host keys against known_hosts.  Every
// endpoint is the gateway host on its own port, so entries are looked
// up, and misses reported, in the "[gateway]:port" form.
func endpointHostKeys(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // user opted out of host key checking
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}

	return func(addr string, remote net.Addr, key ssh.PublicKey) error {
		err := check(addr, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		entry := knownhosts.Normalize(addr)
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("host key for %s does not match %s: %w", entry, path, err)
		}
		host, port, _ := net.SplitHostPort(addr)
		return fmt.Errorf("%s is not in %s (add it with: ssh-keyscan -p %s %s >> %s): %w",
			entry, path, port, host, path, err)
	}, nil
}
