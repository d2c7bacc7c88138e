package directory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	ferr "fleetctl/internal/errors"
	"fleetctl/internal/transport"
)

// Static is a fixed list given on the command line.
type Static struct {
	Items []string
}

// Read implements Source.
func (s *Static) Read(context.Context) (string, error) {
	return strings.Join(s.Items, "\n"), nil
}

func (s *Static) String() string { return "list:" + strings.Join(s.Items, ",") }

// File reads a listing from a file, or from Stdin when Path is "-".
type File struct {
	Path  string
	Stdin io.Reader
}

// Read implements Source.
func (f *File) Read(context.Context) (string, error) {
	if f.Path == "-" {
		r := f.Stdin
		if r == nil {
			r = os.Stdin
		}
		data, err := io.ReadAll(r)
		return string(data), err
	}
	data, err := os.ReadFile(f.Path)
	return string(data), err
}

func (f *File) String() string { return "file:" + f.Path }

// Command runs a local shell command and reads its stdout.
type Command struct {
	Command string
}

// Read implements Source.
func (c *Command) Read(ctx context.Context) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", c.Command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", c.Command)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

func (c *Command) String() string { return "exec:" + c.Command }

// Gateway runs a command on the gateway host itself, reached through
// the transport on the gateway's SSH port.
type Gateway struct {
	Transport transport.Transport
	Port      int
	Command   string
}

// Read implements Source.  A non-zero exit status is a failure even if
// some output was produced.
func (g *Gateway) Read(ctx context.Context) (string, error) {
	return g.Transport.Exec(ctx, g.Port, g.Command)
}

func (g *Gateway) String() string { return fmt.Sprintf("gateway:%d:%s", g.Port, g.Command) }

// ParseSource builds a Source from a spec string:
//
//	list:10,11,12   static list (a bare "10,11,12" works too)
//	file:PATH       read PATH, "-" for stdin
//	exec:CMD        run CMD locally
//	gateway:CMD     run CMD on the gateway over SSH
//
// gw is used only for gateway specs and may be nil otherwise.
func ParseSource(spec string, gw *Gateway) (Source, error) {
	kind, rest, found := strings.Cut(spec, ":")
	if !found {
		if items := splitList(spec); len(items) > 0 && looksNumeric(items) {
			return &Static{Items: items}, nil
		}
		return nil, ferr.InvalidArgument("endpoint source %q: expected list:, file:, exec: or gateway:", spec)
	}
	if rest == "" {
		return nil, ferr.InvalidArgument("endpoint source %q: empty %s argument", spec, kind)
	}

	switch kind {
	case "list":
		return &Static{Items: splitList(rest)}, nil
	case "file":
		return &File{Path: rest}, nil
	case "exec":
		return &Command{Command: rest}, nil
	case "gateway":
		if gw == nil || gw.Transport == nil {
			return nil, ferr.InvalidArgument("endpoint source %q: no gateway transport configured", spec)
		}
		src := *gw
		src.Command = rest
		return &src, nil
	default:
		return nil, ferr.InvalidArgument("endpoint source %q: unknown kind %q", spec, kind)
	}
}

// LooksLikeSource reports whether spec has the shape of an endpoint
// source: a known kind with an argument, or a bare list of endpoints.
// It does not check that the source can be read.
func LooksLikeSource(spec string) bool {
	kind, rest, found := strings.Cut(spec, ":")
	if !found {
		items := splitList(spec)
		return len(items) > 0 && looksNumeric(items)
	}
	switch kind {
	case "list", "file", "exec", "gateway":
		return rest != ""
	}
	return false
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func looksNumeric(items []string) bool {
	for _, it := range items {
		if _, ok := parseEndpoint(it); !ok {
			return false
		}
	}
	return true
}
