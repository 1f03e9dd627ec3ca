package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/flock/pkg/client"
)

// Waiter polls a condition until it holds or a timeout expires
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with a 15s timeout and 100ms interval
func DefaultWaiter() *Waiter {
	return NewWaiter(15*time.Second, 100*time.Millisecond)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForWorker waits until the worker at addr answers with the given
// generation token. An empty token accepts any generation.
func (w *Waiter) WaitForWorker(ctx context.Context, addr, token string) error {
	return w.WaitFor(ctx, func() bool {
		gen, err := workerGeneration(ctx, addr)
		if err != nil {
			return false
		}
		return token == "" || gen == token
	}, "worker "+addr+" to answer")
}

// WaitForWorkerGone waits until nothing answers at addr
func (w *Waiter) WaitForWorkerGone(ctx context.Context, addr string) error {
	return w.WaitFor(ctx, func() bool {
		_, err := workerGeneration(ctx, addr)
		return err != nil
	}, "worker "+addr+" to stop")
}

func workerGeneration(ctx context.Context, addr string) (string, error) {
	h, err := client.Dial(ctx, addr, client.Options{ProbeTimeout: 500 * time.Millisecond})
	if err != nil {
		return "", err
	}
	defer h.Close()

	gen, err := h.Generation(ctx)
	if err != nil {
		return "", err
	}
	return gen.Token, nil
}
