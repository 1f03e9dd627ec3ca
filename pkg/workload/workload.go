// Package workload binds the pi and prime computations to the fleet: ports,
// kernels, dispatch modes, defaults, store sessions and the result line.
package workload

import (
	"context"
	"fmt"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/dispatch"
	"github.com/cuemby/flock/pkg/fleet"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/storage"
	"github.com/cuemby/flock/pkg/types"
)

const (
	// DefaultEntrypoint is the worker binary inside the remote worker path
	DefaultEntrypoint = "flock-worker"

	PiPort          = 18883
	PiDefaultWidth  = 100000
	PiDefaultTarget = 400000000

	PrimesPort          = 18882
	PrimesDefaultWidth  = 10000
	PrimesDefaultTarget = 2000000
	// PrimesCollection is the dedup collection the prime search writes to
	PrimesCollection = "prime"

	// StatsPort is where the stats monitor runs its worker
	StatsPort = 18880
)

// Workload is one computation the fleet can run
type Workload interface {
	Name() string
	Mode() dispatch.Mode
	Port() int
	Kernel() string
	// Defaults returns the default block width and target
	Defaults() (width, target int64)
	// Prepare runs before any node starts
	Prepare(ctx context.Context) error
	// Session returns per-client setup, or nil
	Session() fleet.Session
	// Result turns a finished run into the final answer line
	Result(ctx context.Context, summary *fleet.Summary) (string, error)
	// Finish runs after the result has been computed
	Finish(ctx context.Context) error
}

// Binding returns the worker binding for w with the given payload
func Binding(w Workload, payloadPath, entrypoint string) types.WorkerBinding {
	if entrypoint == "" {
		entrypoint = DefaultEntrypoint
	}
	return types.WorkerBinding{
		PayloadPath: payloadPath,
		Entrypoint:  entrypoint,
		Kernel:      w.Kernel(),
		Port:        w.Port(),
	}
}

// Pi estimates pi by Monte-Carlo sampling in push mode
type Pi struct{}

func NewPi() *Pi { return &Pi{} }

func (p *Pi) Name() string { return "pi" }
func (p *Pi) Mode() dispatch.Mode { return dispatch.ModePush }
func (p *Pi) Port() int { return PiPort }
func (p *Pi) Kernel() string { return kernel.MonteCarloName }
func (p *Pi) Defaults() (int64, int64) { return PiDefaultWidth, PiDefaultTarget }
func (p *Pi) Prepare(ctx context.Context) error { return nil }
func (p *Pi) Session() fleet.Session { return nil }
func (p *Pi) Finish(ctx context.Context) error { return nil }

// Estimate returns 4 * inside / total, or 0 when nothing was sampled
func Estimate(inside, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return 4 * float64(inside) / float64(total)
}

func (p *Pi) Result(ctx context.Context, summary *fleet.Summary) (string, error) {
	pi := Estimate(summary.Completed, summary.Consumed)
	return fmt.Sprintf("Found pi %.8f from %d points completed time %0.2f seconds",
		pi, summary.Consumed, summary.Elapsed.Seconds()), nil
}

// Primes searches [0, target) for primes in pull mode, collecting them in a
// dedup store shared by every worker
type Primes struct {
	storeURL   string
	collection string
	openStore  func(ctx context.Context, url string) (storage.Store, error)
}

// NewPrimes creates the prime search writing to the store at storeURL
func NewPrimes(storeURL string) *Primes {
	return &Primes{
		storeURL:   storeURL,
		collection: PrimesCollection,
		openStore:  storage.Open,
	}
}

func (p *Primes) Name() string { return "prime" }
func (p *Primes) Mode() dispatch.Mode { return dispatch.ModePull }
func (p *Primes) Port() int { return PrimesPort }
func (p *Primes) Kernel() string { return kernel.PrimesName }
func (p *Primes) Defaults() (int64, int64) { return PrimesDefaultWidth, PrimesDefaultTarget }

// Prepare empties the collection left over by any earlier run
func (p *Primes) Prepare(ctx context.Context) error {
	return p.clear(ctx)
}

// Finish empties the collection once the count has been taken
func (p *Primes) Finish(ctx context.Context) error {
	return p.clear(ctx)
}

func (p *Primes) clear(ctx context.Context) error {
	store, err := p.openStore(ctx, p.storeURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if err := store.Delete(ctx, p.collection); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", p.collection, err)
	}
	return nil
}

func (p *Primes) Session() fleet.Session {
	return &primesSession{storeURL: p.storeURL, collection: p.collection}
}

func (p *Primes) Result(ctx context.Context, summary *fleet.Summary) (string, error) {
	store, err := p.openStore(ctx, p.storeURL)
	if err != nil {
		return "", fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	n, err := store.Count(ctx, p.collection)
	if err != nil {
		return "", fmt.Errorf("failed to count collection %s: %w", p.collection, err)
	}
	return fmt.Sprintf("Found %d out of %d prime numbers completed time %0.2f seconds",
		n, summary.Target, summary.Elapsed.Seconds()), nil
}

type primesSession struct {
	storeURL   string
	collection string
}

// Open connects the worker to the dedup store. A failed ping is only a
// warning; blocks on that worker will then fail and count as consumed.
func (s *primesSession) Open(ctx context.Context, h *client.Handle) error {
	ok, err := h.Open(ctx, s.storeURL, s.collection)
	if err != nil {
		return err
	}
	if !ok {
		log.Logger.Warn().Str("addr", h.Addr()).Str("store", s.storeURL).Msg("Worker cannot reach the dedup store")
	}
	return nil
}

func (s *primesSession) Close(ctx context.Context, h *client.Handle) error {
	return h.CloseStore(ctx)
}

// ByName returns the workload registered under name
func ByName(name, storeURL string) (Workload, error) {
	switch name {
	case "pi":
		return NewPi(), nil
	case "prime", "primes":
		return NewPrimes(storeURL), nil
	default:
		return nil, fmt.Errorf("unknown workload %q", name)
	}
}
