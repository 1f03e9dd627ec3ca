package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/flock/pkg/api"
	"github.com/cuemby/flock/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// DefaultRequestTimeout bounds every worker RPC
	DefaultRequestTimeout = 60 * time.Second
	// DefaultProbeTimeout bounds the liveness probe made while dialing
	DefaultProbeTimeout = 2 * time.Second
)

// ErrHandleClosed is returned by any call made after Close
var ErrHandleClosed = errors.New("worker handle closed")

// ContextDialer opens the raw connection to a worker address
type ContextDialer func(ctx context.Context, addr string) (net.Conn, error)

// Options configures a Handle
type Options struct {
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
	// Dialer replaces the default TCP dialer (used with in-memory listeners)
	Dialer ContextDialer
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	return o
}

// Handle is one live connection to a worker service. A handle is owned by
// the goroutine that created it and must be closed by that owner.
type Handle struct {
	addr    string
	conn    *grpc.ClientConn
	client  api.WorkerClient
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// Dial connects to the worker service at addr and probes it. The handle is
// returned only if the worker answered the probe.
func Dial(ctx context.Context, addr string, opts Options) (*Handle, error) {
	opts = opts.withDefaults()

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.Dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(opts.Dialer))
	}

	conn, err := grpc.NewClient("passthrough:///"+addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}

	h := &Handle{
		addr:    addr,
		conn:    conn,
		client:  api.NewWorkerClient(conn),
		timeout: opts.RequestTimeout,
	}

	probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
	defer cancel()
	if _, err := h.client.Generation(probeCtx, &emptypb.Empty{}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("worker at %s not reachable: %w", addr, err)
	}

	return h, nil
}

// Addr returns the worker address
func (h *Handle) Addr() string {
	return h.addr
}

// call runs fn with the request timeout unless the handle is closed
func (h *Handle) call(ctx context.Context, fn func(ctx context.Context) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHandleClosed
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return fn(ctx)
}

// CPUCount returns the logical CPU count of the worker host
func (h *Handle) CPUCount(ctx context.Context) (int, error) {
	var n int
	err := h.call(ctx, func(ctx context.Context) error {
		resp, err := h.client.CPUCount(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		n = int(resp.GetValue())
		return nil
	})
	return n, err
}

// Calculate asks the worker to process one block and returns its contribution
func (h *Handle) Calculate(ctx context.Context, block types.WorkBlock) (int64, error) {
	var n int64
	err := h.call(ctx, func(ctx context.Context) error {
		resp, err := h.client.Calculate(ctx, api.EncodeBlock(block))
		if err != nil {
			return err
		}
		n = resp.GetValue()
		return nil
	})
	return n, err
}

// Open connects the worker to a dedup store collection. It returns whether
// the worker could ping the store.
func (h *Handle) Open(ctx context.Context, storeURL, collection string) (bool, error) {
	var ok bool
	err := h.call(ctx, func(ctx context.Context) error {
		resp, err := h.client.Open(ctx, api.EncodeOpen(storeURL, collection))
		if err != nil {
			return err
		}
		ok = resp.GetValue()
		return nil
	})
	return ok, err
}

// CloseStore releases the worker's dedup store connection
func (h *Handle) CloseStore(ctx context.Context) error {
	return h.call(ctx, func(ctx context.Context) error {
		_, err := h.client.CloseStore(ctx, &emptypb.Empty{})
		return err
	})
}

// Generation returns the launch generation of the worker process
func (h *Handle) Generation(ctx context.Context) (types.Generation, error) {
	var gen types.Generation
	err := h.call(ctx, func(ctx context.Context) error {
		resp, err := h.client.Generation(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		gen = api.DecodeGeneration(resp)
		return nil
	})
	return gen, err
}

// Shutdown asks the worker to exit if token matches its generation
func (h *Handle) Shutdown(ctx context.Context, token string) error {
	return h.call(ctx, func(ctx context.Context) error {
		_, err := h.client.Shutdown(ctx, wrapperspb.String(token))
		return err
	})
}

// Stats returns a runtime snapshot of the worker
func (h *Handle) Stats(ctx context.Context) (types.NodeStats, error) {
	var st types.NodeStats
	err := h.call(ctx, func(ctx context.Context) error {
		resp, err := h.client.Stats(ctx, &emptypb.Empty{})
		if err != nil {
			return err
		}
		st = api.DecodeStats(resp)
		return nil
	})
	return st, err
}

// Close tears down the connection. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.conn.Close()
}
