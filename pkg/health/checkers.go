package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/types"
)

// DefaultTimeout bounds a single check
const DefaultTimeout = 5 * time.Second

func finish(start time.Time, healthy bool, format string, args ...interface{}) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// TCPChecker reports whether a port accepts connections
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a checker for host:port
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: DefaultTimeout}
}

// NewSSHChecker checks the ssh port of node
func NewSSHChecker(node *types.Node, port int) *TCPChecker {
	return NewTCPChecker(net.JoinHostPort(node.Hostname, strconv.Itoa(port)))
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return finish(start, false, "connection failed: %v", err)
	}
	_ = conn.Close()
	return finish(start, true, "%s accepts connections", t.Address)
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WorkerChecker reports whether a worker service answers its probe
type WorkerChecker struct {
	Address string
	Options client.Options
}

// NewWorkerChecker checks the worker bound to binding on node
func NewWorkerChecker(node *types.Node, binding types.WorkerBinding, opts client.Options) *WorkerChecker {
	return &WorkerChecker{Address: node.Address(binding.Port), Options: opts}
}

func (w *WorkerChecker) Check(ctx context.Context) Result {
	start := time.Now()
	h, err := client.Dial(ctx, w.Address, w.Options)
	if err != nil {
		return finish(start, false, "worker not answering: %v", err)
	}
	defer h.Close()

	gen, err := h.Generation(ctx)
	if err != nil {
		return finish(start, false, "generation probe failed: %v", err)
	}
	return finish(start, true, "generation %s pid %d", gen.Token, gen.PID)
}

func (w *WorkerChecker) Type() CheckType {
	return CheckTypeWorker
}
