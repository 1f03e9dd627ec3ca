package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/types"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultSSHPort is used when a node does not override it
	DefaultSSHPort = 22
	// DefaultDialTimeout bounds the ssh handshake
	DefaultDialTimeout = 10 * time.Second
)

// SSH reaches nodes over ssh with key authentication and syncs payloads
// with rsync
type SSH struct {
	// Port is the remote ssh port (default 22)
	Port int
	// DialTimeout bounds connection setup (default 10s)
	DialTimeout time.Duration
	// Rsync is the local rsync binary (default "rsync")
	Rsync string
}

// NewSSH creates an ssh transport with default settings
func NewSSH() *SSH {
	return &SSH{
		Port:        DefaultSSHPort,
		DialTimeout: DefaultDialTimeout,
		Rsync:       "rsync",
	}
}

func (s *SSH) clientConfig(node *types.Node) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(node.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", node.KeyFile, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", node.KeyFile, err)
	}

	return &ssh.ClientConfig{
		User: node.Username,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Nodes are addressed by the cluster config only; no known_hosts
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.DialTimeout,
	}, nil
}

// dial opens an ssh connection to node that is torn down when ctx ends
func (s *SSH) dial(ctx context.Context, node *types.Node) (*ssh.Client, error) {
	cfg, err := s.clientConfig(node)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(node.Hostname, strconv.Itoa(s.Port))
	d := net.Dialer{Timeout: s.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Exec runs command on node and returns its combined output
func (s *SSH) Exec(ctx context.Context, node *types.Node, command string) (string, error) {
	logger := log.WithNode("transport", node.Name)
	logger.Debug().Str("command", command).Msg("ssh exec")

	c, err := s.dial(ctx, node)
	if err != nil {
		return "", err
	}
	defer c.Close()

	session, err := c.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open session on %s: %w", node.Name, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		_ = c.Close()
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return string(r.out), fmt.Errorf("command failed on %s: %w", node.Name, r.err)
		}
		return string(r.out), nil
	}
}

// Launch starts command detached from the ssh session and returns the pid
// the remote shell reported
func (s *SSH) Launch(ctx context.Context, node *types.Node, command string) (LaunchHandle, error) {
	line := fmt.Sprintf("nohup setsid %s >/dev/null 2>&1 </dev/null & echo $!", command)
	out, err := s.Exec(ctx, node, line)
	if err != nil {
		return nil, fmt.Errorf("failed to launch on %s: %w", node.Name, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return nil, fmt.Errorf("unexpected launch output from %s: %q", node.Name, out)
	}

	logger := log.WithNode("transport", node.Name)
	logger.Debug().Int("pid", pid).Msg("Launched remote process")
	return &sshLaunch{transport: s, node: node, pid: pid}, nil
}

// Sync copies localPath into the remote home directory with rsync. Only
// changed files are transferred, so repeated syncs are cheap.
func (s *SSH) Sync(ctx context.Context, node *types.Node, localPath string) (string, error) {
	logger := log.WithNode("transport", node.Name)
	logger.Debug().Str("path", localPath).Msg("rsync payload")

	rsh := fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=no", node.KeyFile, s.Port)
	cmd := exec.CommandContext(ctx, s.Rsync,
		"--archive",
		"--recursive",
		"--verbose",
		"--rsh", rsh,
		localPath,
		node.UserHost()+":",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("rsync to %s failed: %w: %s", node.Name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

type sshLaunch struct {
	transport *SSH
	node      *types.Node
	pid       int
}

func (l *sshLaunch) PID() int {
	return l.pid
}

func (l *sshLaunch) Kill(ctx context.Context) error {
	_, err := l.transport.Exec(ctx, l.node, fmt.Sprintf("kill %d", l.pid))
	return err
}
