package dispatch

import (
	"context"

	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/progress"
	"github.com/cuemby/flock/pkg/types"
	"github.com/rs/zerolog"
)

// Mode selects how blocks reach the workers
type Mode string

const (
	// ModePush repeatedly sends fixed-size blocks until the target is consumed
	ModePush Mode = "push"
	// ModePull drains a shared queue of pre-partitioned ranges
	ModePull Mode = "pull"
)

// Calculator runs one block on a worker and returns its contribution
type Calculator interface {
	Calculate(ctx context.Context, block types.WorkBlock) (int64, error)
}

// Options labels a client loop for logs and metrics
type Options struct {
	Node   string
	Client int
}

// Result summarises one client loop
type Result struct {
	Blocks   int
	Failures int
}

// Push asks calc for blocks of width units until the shared consumption
// reaches the target. Concurrent clients may each finish one block past it.
func Push(ctx context.Context, calc Calculator, state *progress.State, width int64, opts Options) (Result, error) {
	logger := clientLogger(opts)
	var res Result

	for !state.Done() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		run(ctx, calc, state, types.SizeBlock(width), ModePush, opts, logger, &res)
	}

	logger.Debug().Int("blocks", res.Blocks).Int("failures", res.Failures).Msg("Push loop finished")
	return res, nil
}

// Pull takes blocks from queue until it is drained. A failed block is not
// retried; its units still count as consumed.
func Pull(ctx context.Context, calc Calculator, queue *Queue, state *progress.State, opts Options) (Result, error) {
	logger := clientLogger(opts)
	var res Result

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		block, ok := queue.TryDequeue()
		if !ok {
			break
		}
		run(ctx, calc, state, block, ModePull, opts, logger, &res)
	}

	logger.Debug().Int("blocks", res.Blocks).Int("failures", res.Failures).Msg("Pull loop finished")
	return res, nil
}

func run(ctx context.Context, calc Calculator, state *progress.State, block types.WorkBlock, mode Mode, opts Options, logger zerolog.Logger, res *Result) {
	timer := metrics.NewTimer()
	contribution, err := calc.Calculate(ctx, block)
	timer.ObserveDurationVec(metrics.BlockDuration, string(mode))
	metrics.BlocksDispatched.WithLabelValues(opts.Node, string(mode)).Inc()
	res.Blocks++

	if err != nil {
		res.Failures++
		metrics.BlockFailures.WithLabelValues(opts.Node).Inc()
		logger.Warn().Err(err).Str("block", block.String()).Msg("Block failed")
		state.Add(0, block.Width())
		return
	}
	state.Add(contribution, block.Width())
}

func clientLogger(opts Options) zerolog.Logger {
	return log.WithClient("dispatch", opts.Node, opts.Client)
}
