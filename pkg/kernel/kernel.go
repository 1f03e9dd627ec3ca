// Package kernel holds the computations a worker service can run.
package kernel

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/cuemby/flock/pkg/types"
)

const (
	// MonteCarloName selects the pi sampler
	MonteCarloName = "pi"
	// PrimesName selects the prime range search
	PrimesName = "prime"

	// ctx is checked once per this many iterations
	cancelCheckEvery = 1 << 14
)

// Result is the partial result of one block
type Result struct {
	// Count is the contribution attributed to the block
	Count int64
	// Items are per-item results to be written to a dedup store
	Items []int64
}

// Kernel performs the computation for one block of work
type Kernel interface {
	Name() string
	Calculate(ctx context.Context, block types.WorkBlock) (Result, error)
}

// New returns the kernel registered under name
func New(name string) (Kernel, error) {
	switch name {
	case MonteCarloName:
		return NewMonteCarlo(), nil
	case PrimesName:
		return NewPrimes(), nil
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}

// MonteCarlo counts uniformly sampled points of the unit square that fall
// inside the quarter circle of radius 1.
type MonteCarlo struct{}

func NewMonteCarlo() *MonteCarlo { return &MonteCarlo{} }

func (m *MonteCarlo) Name() string { return MonteCarloName }

func (m *MonteCarlo) Calculate(ctx context.Context, block types.WorkBlock) (Result, error) {
	if block.Kind != types.BlockKindSize {
		return Result{}, fmt.Errorf("%s kernel needs a size block, got %s", MonteCarloName, block)
	}
	if block.Size < 0 {
		return Result{}, fmt.Errorf("negative block size %d", block.Size)
	}

	var inside int64
	for i := int64(0); i < block.Size; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		x := rand.Float64()
		y := rand.Float64()
		if math.Sqrt(x*x+y*y) < 1.0 {
			inside++
		}
	}
	return Result{Count: inside}, nil
}

// Primes finds the primes in a half-open range by trial division
type Primes struct{}

func NewPrimes() *Primes { return &Primes{} }

func (p *Primes) Name() string { return PrimesName }

func (p *Primes) Calculate(ctx context.Context, block types.WorkBlock) (Result, error) {
	if block.Kind != types.BlockKindRange {
		return Result{}, fmt.Errorf("%s kernel needs a range block, got %s", PrimesName, block)
	}
	if block.To < block.From {
		return Result{}, fmt.Errorf("invalid range %s", block)
	}

	var primes []int64
	for n := block.From; n < block.To; n++ {
		if (n-block.From)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if IsPrime(n) {
			primes = append(primes, n)
		}
	}
	return Result{Count: int64(len(primes)), Items: primes}, nil
}

// IsPrime reports whether n is prime
func IsPrime(n int64) bool {
	if n < 2 {
		return false
	}
	if n < 4 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	limit := isqrt(n)
	for d := int64(3); d <= limit; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// isqrt returns floor(sqrt(n)) for n >= 0 without squaring, so it holds up
// to MaxInt64
func isqrt(n int64) int64 {
	r := int64(math.Sqrt(float64(n)))
	for r > 0 && r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}
