package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/retry"
	"github.com/cuemby/flock/pkg/transport"
	"github.com/cuemby/flock/pkg/types"
	"github.com/google/uuid"
)

const (
	// DefaultConnectTimeout bounds the wait for a freshly launched worker
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRetryInterval separates connection attempts
	DefaultRetryInterval = 250 * time.Millisecond
	// DefaultStopTimeout bounds the wait for a stopped worker to go away
	DefaultStopTimeout = 5 * time.Second
)

// ErrNodeUnreachable means no worker answered on the node within the timeout
var ErrNodeUnreachable = errors.New("node unreachable")

var errStillRunning = errors.New("worker still answering")

// Options controls one Ensure or Stop call
type Options struct {
	// ForceRestart stops any running worker and re-syncs the payload first
	ForceRestart   bool
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	StopTimeout    time.Duration
	// Client configures the handles the controller dials
	Client client.Options
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	return o
}

// Controller makes sure a worker service is running on a node and hands
// back a live handle to it
type Controller struct {
	transport transport.Transport
	newToken  func() string
}

// New creates a controller that reaches nodes through t
func New(t transport.Transport) *Controller {
	return &Controller{
		transport: t,
		newToken:  uuid.NewString,
	}
}

// Ensure returns a live handle to the worker bound to binding on node,
// launching a new generation when none answers. The caller owns the handle.
func (c *Controller) Ensure(ctx context.Context, node *types.Node, binding types.WorkerBinding, opts Options) (*client.Handle, error) {
	opts = opts.withDefaults()
	logger := log.WithNode("controller", node.Name)
	addr := node.Address(binding.Port)

	if opts.ForceRestart {
		logger.Debug().Msg("Restart requested, stopping current worker")
		if err := c.Stop(ctx, node, binding, opts); err != nil {
			logger.Debug().Err(err).Msg("Stop failed")
		}
	} else {
		h, err := c.dial(ctx, node, addr, opts)
		if err == nil {
			logger.Debug().Str("addr", addr).Msg("Reusing running worker")
			return h, nil
		}
		logger.Debug().Err(err).Msg("No worker answering")
	}

	if err := c.sync(ctx, node, binding); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNodeUnreachable, node.Name, err)
	}

	token := c.newToken()
	logger.Debug().Str("generation", token).Msg("Starting worker")
	launch, err := c.transport.Launch(ctx, node, binding.Command(node, token))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNodeUnreachable, node.Name, err)
	}
	metrics.WorkerLaunches.WithLabelValues(node.Name).Inc()

	var handle *client.Handle
	res := retry.Do(ctx, retry.ForTimeout(opts.ConnectTimeout, opts.RetryInterval), func(ctx context.Context) error {
		h, err := c.dial(ctx, node, addr, opts)
		if err != nil {
			return err
		}
		gen, err := h.Generation(ctx)
		if err != nil {
			_ = h.Close()
			return err
		}
		if gen.Token != token {
			_ = h.Close()
			return fmt.Errorf("worker reports generation %q, want %q", gen.Token, token)
		}
		handle = h
		return nil
	})

	if !res.OK {
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.StopTimeout)
		defer cancel()
		if err := launch.Kill(killCtx); err != nil {
			logger.Debug().Err(err).Int("pid", launch.PID()).Msg("Failed to kill launched worker")
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNodeUnreachable, node.Name, res.Err())
	}

	logger.Debug().
		Str("generation", token).
		Int("attempts", res.Attempts).
		Dur("elapsed", res.Elapsed).
		Msg("Worker connected")
	return handle, nil
}

// Stop ends the current worker generation on node. A reachable worker is
// asked to shut down with its own generation token; otherwise the pid file
// written at launch is used to kill it.
func (c *Controller) Stop(ctx context.Context, node *types.Node, binding types.WorkerBinding, opts Options) error {
	opts = opts.withDefaults()
	logger := log.WithNode("controller", node.Name)
	addr := node.Address(binding.Port)

	if h, err := c.dial(ctx, node, addr, opts); err == nil {
		err = shutdown(ctx, h)
		_ = h.Close()
		if err == nil {
			res := retry.Do(ctx, retry.ForTimeout(opts.StopTimeout, opts.RetryInterval), func(ctx context.Context) error {
				h, err := client.Dial(ctx, addr, opts.Client)
				if err != nil {
					return nil
				}
				_ = h.Close()
				return errStillRunning
			})
			if res.OK {
				logger.Debug().Msg("Worker stopped")
				return nil
			}
			logger.Debug().Err(res.Err()).Msg("Worker did not stop in time")
		} else {
			logger.Debug().Err(err).Msg("Shutdown request failed")
		}
	}

	pidFile := binding.PIDFile(node)
	line := fmt.Sprintf("if [ -f %[1]s ]; then kill $(cat %[1]s); rm -f %[1]s; fi", pidFile)
	if _, err := c.transport.Exec(ctx, node, line); err != nil {
		return fmt.Errorf("failed to kill worker on %s: %w", node.Name, err)
	}
	return nil
}

func shutdown(ctx context.Context, h *client.Handle) error {
	gen, err := h.Generation(ctx)
	if err != nil {
		return err
	}
	return h.Shutdown(ctx, gen.Token)
}

func (c *Controller) sync(ctx context.Context, node *types.Node, binding types.WorkerBinding) error {
	if binding.PayloadPath == "" {
		return nil
	}
	out, err := c.transport.Sync(ctx, node, binding.PayloadPath)
	if err != nil {
		return err
	}
	metrics.PayloadSyncs.WithLabelValues(node.Name).Inc()
	logger := log.WithNode("controller", node.Name)
	logger.Debug().Str("output", out).Msg("Payload synced")
	return nil
}

func (c *Controller) dial(ctx context.Context, node *types.Node, addr string, opts Options) (*client.Handle, error) {
	h, err := client.Dial(ctx, addr, opts.Client)
	if err != nil {
		metrics.ConnectAttempts.WithLabelValues(node.Name, "failure").Inc()
		return nil, err
	}
	metrics.ConnectAttempts.WithLabelValues(node.Name, "success").Inc()
	return h, nil
}
