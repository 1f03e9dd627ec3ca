package health

import (
	"context"
	"time"
)

// CheckType represents the type of reachability check
type CheckType string

const (
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeWorker CheckType = "worker"
)

// Result represents the outcome of a check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all checkers implement
type Checker interface {
	// Check performs the check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of check
	Type() CheckType
}

// CheckAll runs every checker concurrently and returns results in order
func CheckAll(ctx context.Context, checkers []Checker) []Result {
	results := make([]Result, len(checkers))
	done := make(chan struct{}, len(checkers))
	for i, c := range checkers {
		go func(i int, c Checker) {
			results[i] = c.Check(ctx)
			done <- struct{}{}
		}(i, c)
	}
	for range checkers {
		<-done
	}
	return results
}
