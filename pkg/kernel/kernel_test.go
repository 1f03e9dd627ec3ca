package kernel

import (
	"context"
	"math"
	"testing"

	"github.com/cuemby/flock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	k, err := New("pi")
	require.NoError(t, err)
	assert.Equal(t, MonteCarloName, k.Name())

	k, err = New("prime")
	require.NoError(t, err)
	assert.Equal(t, PrimesName, k.Name())

	_, err = New("fft")
	assert.Error(t, err)
}

func TestMonteCarlo(t *testing.T) {
	k := NewMonteCarlo()

	res, err := k.Calculate(context.Background(), types.SizeBlock(200000))
	require.NoError(t, err)

	// pi/4 of the samples land inside; allow a wide margin
	ratio := float64(res.Count) / 200000
	assert.InDelta(t, 0.785, ratio, 0.02)
	assert.Empty(t, res.Items)

	res, err = k.Calculate(context.Background(), types.SizeBlock(0))
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	_, err = k.Calculate(context.Background(), types.RangeBlock(0, 10))
	assert.Error(t, err)
}

func TestMonteCarloCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMonteCarlo().Calculate(ctx, types.SizeBlock(1000))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrimes(t *testing.T) {
	k := NewPrimes()

	res, err := k.Calculate(context.Background(), types.RangeBlock(0, 30))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}, res.Items)
	assert.Equal(t, int64(10), res.Count)

	res, err = k.Calculate(context.Background(), types.RangeBlock(0, 10000))
	require.NoError(t, err)
	assert.Equal(t, int64(1229), res.Count)

	res, err = k.Calculate(context.Background(), types.RangeBlock(24, 29))
	require.NoError(t, err)
	assert.Zero(t, res.Count)

	_, err = k.Calculate(context.Background(), types.SizeBlock(10))
	assert.Error(t, err)

	_, err = k.Calculate(context.Background(), types.RangeBlock(10, 5))
	assert.Error(t, err)
}

func TestIsPrime(t *testing.T) {
	tests := []struct {
		n     int64
		prime bool
	}{
		{-7, false}, {0, false}, {1, false}, {2, true}, {3, true}, {4, false},
		{9, false}, {25, false}, {97, true}, {7919, true}, {7921, false},
		{math.MaxInt64, false}, {math.MaxInt64 - 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.prime, IsPrime(tt.n), "IsPrime(%d)", tt.n)
	}
}

func TestIsqrt(t *testing.T) {
	tests := []struct {
		n    int64
		root int64
	}{
		{0, 0}, {1, 1}, {3, 1}, {4, 2}, {99, 9}, {100, 10},
		{3037000499 * 3037000499, 3037000499},
		{3037000499*3037000499 - 1, 3037000498},
		{math.MaxInt64, 3037000499},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.root, isqrt(tt.n), "isqrt(%d)", tt.n)
	}
}
