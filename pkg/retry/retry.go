// Package retry runs an operation until it succeeds or a policy gives up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when every attempt failed
var ErrTimeout = errors.New("retry attempts exhausted")

// Policy is a fixed number of attempts separated by a fixed backoff
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// ForTimeout builds a policy that spends roughly timeout retrying every interval
func ForTimeout(timeout, interval time.Duration) Policy {
	if interval <= 0 {
		interval = time.Second
	}
	attempts := int(timeout / interval)
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Attempts: attempts, Backoff: interval}
}

// Result reports how a retried operation ended
type Result struct {
	OK       bool
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

// Err returns nil on success, or ErrTimeout wrapping the last attempt error
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	if r.LastErr != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrTimeout, r.Attempts, r.LastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrTimeout, r.Attempts)
}

// Do calls fn until it succeeds, the attempts run out, or ctx is done.
// The first attempt runs immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) Result {
	start := time.Now()
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var res Result
	for i := 0; i < attempts; i++ {
		res.Attempts = i + 1
		err := fn(ctx)
		if err == nil {
			res.OK = true
			res.LastErr = nil
			res.Elapsed = time.Since(start)
			return res
		}
		res.LastErr = err

		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.LastErr = ctx.Err()
			res.Elapsed = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res.Elapsed = time.Since(start)
	return res
}
