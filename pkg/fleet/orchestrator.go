package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/dispatch"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/progress"
	"github.com/cuemby/flock/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelismFactor is the number of clients started per worker CPU
const DefaultParallelismFactor = 4

// ErrNoReachableNodes is returned when no selected node ran any work
var ErrNoReachableNodes = errors.New("no reachable nodes")

// Ensurer guarantees a reachable worker on a node
type Ensurer interface {
	Ensure(ctx context.Context, node *types.Node, binding types.WorkerBinding, opts controller.Options) (*client.Handle, error)
}

// Session opens and releases per-client worker resources around a
// dispatch loop
type Session interface {
	Open(ctx context.Context, h *client.Handle) error
	Close(ctx context.Context, h *client.Handle) error
}

// Config describes one fleet run
type Config struct {
	Nodes   []*types.Node
	Binding types.WorkerBinding
	Mode    dispatch.Mode
	// Width is the block size in units
	Width int64
	// Target is the total number of units to consume
	Target int64
	// Factor multiplies each node's CPU count into a client count
	Factor     int
	Controller controller.Options
	// Session is optional
	Session Session
	// Reporter renders progress while the run is active; nil disables it
	Reporter func(*progress.State) *progress.Reporter
	// Warnings receives the plain console line for unreachable nodes
	Warnings io.Writer
}

// Summary is the outcome of a run
type Summary struct {
	Reachable   []string
	Unreachable []string
	Clients     int
	Blocks      int
	Failures    int
	Completed   int64
	Consumed    int64
	Target      int64
	Elapsed     time.Duration
}

// Orchestrator drives one controller and dispatcher unit per node
type Orchestrator struct {
	cfg     Config
	ensurer Ensurer
	state   *progress.State
	queue   *dispatch.Queue

	mu      sync.Mutex
	summary Summary
}

// NewOrchestrator validates cfg and prepares the shared state. In pull mode
// the queue is partitioned and filled here, before any node starts.
func NewOrchestrator(ensurer Ensurer, cfg Config) (*Orchestrator, error) {
	if cfg.Factor <= 0 {
		cfg.Factor = DefaultParallelismFactor
	}
	if cfg.Warnings == nil {
		cfg.Warnings = os.Stderr
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("%w: block width %d must be positive", dispatch.ErrInvalidPartition, cfg.Width)
	}

	o := &Orchestrator{
		cfg:     cfg,
		ensurer: ensurer,
		state:   progress.NewState(cfg.Target),
		summary: Summary{Target: cfg.Target},
	}

	switch cfg.Mode {
	case dispatch.ModePull:
		blocks, err := dispatch.Partition(cfg.Target, cfg.Width)
		if err != nil {
			return nil, err
		}
		o.queue = dispatch.NewQueue(blocks)
	case dispatch.ModePush:
		if cfg.Target < 0 {
			return nil, fmt.Errorf("%w: target %d must not be negative", dispatch.ErrInvalidPartition, cfg.Target)
		}
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Mode)
	}
	return o, nil
}

// State returns the shared progress counters
func (o *Orchestrator) State() *progress.State {
	return o.state
}

// Run starts every node concurrently and waits for all of them
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	logger := log.WithComponent("fleet")
	logger.Info().
		Int("nodes", len(o.cfg.Nodes)).
		Str("mode", string(o.cfg.Mode)).
		Int64("target", o.cfg.Target).
		Int64("width", o.cfg.Width).
		Msg("Starting run")

	var stopReporter func()
	if o.cfg.Reporter != nil {
		reporter := o.cfg.Reporter(o.state)
		rctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reporter.Run(rctx)
		}()
		stopReporter = func() {
			cancel()
			<-done
		}
	}

	metrics.NodesReachable.Set(0)
	g, gctx := errgroup.WithContext(ctx)
	for _, node := range o.cfg.Nodes {
		node := node
		g.Go(func() error {
			return o.runNode(gctx, node)
		})
	}
	err := g.Wait()

	if stopReporter != nil {
		stopReporter()
	}

	o.mu.Lock()
	summary := o.summary
	o.mu.Unlock()
	summary.Completed = o.state.Completed()
	summary.Consumed = o.state.Consumed()
	summary.Elapsed = time.Since(start)

	if err != nil {
		return &summary, err
	}
	if len(summary.Reachable) == 0 {
		metrics.UpdateComponent("fleet", false, "no reachable nodes")
		return &summary, ErrNoReachableNodes
	}
	metrics.UpdateComponent("fleet", true, fmt.Sprintf("%d of %d nodes reachable", len(summary.Reachable), len(o.cfg.Nodes)))

	logger.Info().
		Int("reachable", len(summary.Reachable)).
		Int("unreachable", len(summary.Unreachable)).
		Int("clients", summary.Clients).
		Int64("consumed", summary.Consumed).
		Dur("elapsed", summary.Elapsed).
		Msg("Run finished")
	return &summary, nil
}

// runNode ensures the worker, sizes the client pool and joins it. An
// unreachable node is recorded and skipped.
func (o *Orchestrator) runNode(ctx context.Context, node *types.Node) error {
	logger := log.WithNode("fleet", node.Name)

	h, err := o.ensurer.Ensure(ctx, node, o.cfg.Binding, o.cfg.Controller)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("Node unreachable")
		fmt.Fprintf(o.cfg.Warnings, "cannot connect to node %s\n", node.Name)
		metrics.NodesUnreachable.WithLabelValues(node.Name).Inc()
		o.mu.Lock()
		o.summary.Unreachable = append(o.summary.Unreachable, node.Name)
		o.mu.Unlock()
		return nil
	}

	cpu, known := client.DiscoverCapacity(ctx, h)
	_ = h.Close()

	// a node of unknown capacity takes part with a single client
	clients := 1
	if known {
		clients = cpu * o.cfg.Factor
	}
	logger.Debug().Int("cpu_count", cpu).Int("clients", clients).Msg("Starting clients")

	metrics.NodesReachable.Inc()
	o.mu.Lock()
	o.summary.Reachable = append(o.summary.Reachable, node.Name)
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < clients; i++ {
		i := i
		g.Go(func() error {
			return o.runClient(gctx, node, i)
		})
	}
	return g.Wait()
}

// runClient owns one handle for the lifetime of its dispatch loop
func (o *Orchestrator) runClient(ctx context.Context, node *types.Node, index int) error {
	logger := log.WithClient("fleet", node.Name, index)
	addr := node.Address(o.cfg.Binding.Port)

	h, err := client.Dial(ctx, addr, o.cfg.Controller.Client)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("Client could not connect")
		return nil
	}
	defer h.Close()

	if o.cfg.Session != nil {
		if err := o.cfg.Session.Open(ctx, h); err != nil {
			logger.Warn().Err(err).Msg("Session open failed")
			return nil
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.closeTimeout())
			defer cancel()
			if err := o.cfg.Session.Close(closeCtx, h); err != nil {
				logger.Debug().Err(err).Msg("Session close failed")
			}
		}()
	}

	gauge := metrics.ClientsActive.WithLabelValues(node.Name)
	gauge.Inc()
	defer gauge.Dec()

	opts := dispatch.Options{Node: node.Name, Client: index}
	var res dispatch.Result
	switch o.cfg.Mode {
	case dispatch.ModePull:
		res, err = dispatch.Pull(ctx, h, o.queue, o.state, opts)
	default:
		res, err = dispatch.Push(ctx, h, o.state, o.cfg.Width, opts)
	}

	o.mu.Lock()
	o.summary.Clients++
	o.summary.Blocks += res.Blocks
	o.summary.Failures += res.Failures
	o.mu.Unlock()
	return err
}

func (o *Orchestrator) closeTimeout() time.Duration {
	if t := o.cfg.Controller.Client.RequestTimeout; t > 0 {
		return t
	}
	return client.DefaultRequestTimeout
}
