package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/types"
)

// Local runs node commands on this machine. Commands run from Dir, which
// stands in for the remote home directory.
type Local struct {
	// Dir defaults to the user's home directory
	Dir string
	// Rsync is the rsync binary used by Sync (default "rsync")
	Rsync string
}

// NewLocal creates a local transport rooted at the home directory
func NewLocal() *Local {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Local{Dir: home, Rsync: "rsync"}
}

// Exec runs command through sh and returns its combined output
func (l *Local) Exec(ctx context.Context, node *types.Node, command string) (string, error) {
	logger := log.WithNode("transport", node.Name)
	logger.Debug().Str("command", command).Msg("local exec")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = l.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("command failed on %s: %w", node.Name, err)
	}
	return out.String(), nil
}

// Sync copies localPath into Dir. Syncing a directory onto itself is a no-op.
func (l *Local) Sync(ctx context.Context, node *types.Node, localPath string) (string, error) {
	cmd := exec.CommandContext(ctx, l.Rsync, "--archive", "--recursive", "--verbose", localPath, l.Dir+"/")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("rsync on %s failed: %w: %s", node.Name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Launch starts command in its own session so it outlives the caller
func (l *Local) Launch(ctx context.Context, node *types.Node, command string) (LaunchHandle, error) {
	cmd := exec.Command("sh", "-c", "exec "+command)
	cmd.Dir = l.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to launch on %s: %w", node.Name, err)
	}

	launch := &localLaunch{cmd: cmd, done: make(chan struct{})}
	go func() {
		launch.err = cmd.Wait()
		close(launch.done)
	}()

	logger := log.WithNode("transport", node.Name)
	logger.Debug().Int("pid", cmd.Process.Pid).Msg("Launched local process")
	return launch, nil
}

type localLaunch struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	mu     sync.Mutex
	killed bool
}

func (l *localLaunch) PID() int {
	return l.cmd.Process.Pid
}

// Kill sends SIGTERM and escalates to SIGKILL if the process lingers
func (l *localLaunch) Kill(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.killed {
		return nil
	}
	l.killed = true

	if err := l.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	select {
	case <-l.done:
		return nil
	case <-time.After(5 * time.Second):
	case <-ctx.Done():
	}

	if err := l.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	<-l.done
	return nil
}

// Router sends loopback nodes to a local transport and every other node to
// a remote one
type Router struct {
	Local  Transport
	Remote Transport
}

// NewDefault returns a router over NewLocal and NewSSH
func NewDefault() *Router {
	return &Router{Local: NewLocal(), Remote: NewSSH()}
}

// IsLoopback reports whether hostname names this machine
func IsLoopback(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (r *Router) pick(node *types.Node) Transport {
	if IsLoopback(node.Hostname) {
		return r.Local
	}
	return r.Remote
}

func (r *Router) Exec(ctx context.Context, node *types.Node, command string) (string, error) {
	return r.pick(node).Exec(ctx, node, command)
}

func (r *Router) Sync(ctx context.Context, node *types.Node, localPath string) (string, error) {
	return r.pick(node).Sync(ctx, node, localPath)
}

func (r *Router) Launch(ctx context.Context, node *types.Node, command string) (LaunchHandle, error) {
	return r.pick(node).Launch(ctx, node, command)
}
