package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/flock/pkg/api"
	"github.com/cuemby/flock/pkg/api/apitest"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "pi-1:18883"

func setup(t *testing.T, cfg api.Config) (*apitest.Network, Options) {
	t.Helper()
	network := apitest.NewNetwork()
	t.Cleanup(network.Close)
	network.Serve(testAddr, cfg)
	return network, Options{Dialer: network.Dial}
}

func TestDialAndCalculate(t *testing.T) {
	ctx := context.Background()
	_, opts := setup(t, api.Config{
		Kernel:     kernel.NewMonteCarlo(),
		Generation: types.Generation{Token: "gen-1"},
		CPUCount:   4,
	})

	h, err := Dial(ctx, testAddr, opts)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, testAddr, h.Addr())

	n, err := h.CPUCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	inside, err := h.Calculate(ctx, types.SizeBlock(1000))
	require.NoError(t, err)
	assert.True(t, inside > 0 && inside <= 1000)

	gen, err := h.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", gen.Token)
	assert.NotZero(t, gen.PID)

	st, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.CPUCount)
	assert.Equal(t, "pi", st.Kernel)
	assert.Equal(t, "gen-1", st.Generation)
}

func TestDialUnreachable(t *testing.T) {
	network := apitest.NewNetwork()
	defer network.Close()

	_, err := Dial(context.Background(), "nowhere:18883", Options{Dialer: network.Dial})
	assert.Error(t, err)
}

func TestClosedHandle(t *testing.T) {
	ctx := context.Background()
	_, opts := setup(t, api.Config{Kernel: kernel.NewMonteCarlo(), CPUCount: 2})

	h, err := Dial(ctx, testAddr, opts)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.CPUCount(ctx)
	assert.ErrorIs(t, err, ErrHandleClosed)

	_, err = h.Calculate(ctx, types.SizeBlock(1))
	assert.ErrorIs(t, err, ErrHandleClosed)

	assert.ErrorIs(t, h.CloseStore(ctx), ErrHandleClosed)
}

func TestDiscoverCapacity(t *testing.T) {
	ctx := context.Background()
	_, opts := setup(t, api.Config{Kernel: kernel.NewMonteCarlo(), CPUCount: 8})

	h, err := Dial(ctx, testAddr, opts)
	require.NoError(t, err)

	cpus, ok := DiscoverCapacity(ctx, h)
	assert.True(t, ok)
	assert.Equal(t, 8, cpus)

	// a broken handle reports unknown capacity
	require.NoError(t, h.Close())
	cpus, ok = DiscoverCapacity(ctx, h)
	assert.False(t, ok)
	assert.Equal(t, 1, cpus)
}

func TestOpenStoreAndCalculateRange(t *testing.T) {
	ctx := context.Background()
	_, opts := setup(t, api.Config{Kernel: kernel.NewPrimes(), CPUCount: 1})

	h, err := Dial(ctx, testAddr, opts)
	require.NoError(t, err)
	defer h.Close()

	// range blocks are refused until a store is open
	_, err = h.Calculate(ctx, types.RangeBlock(0, 100))
	assert.Error(t, err)

	storeURL := "bolt://" + filepath.Join(t.TempDir(), "results.db")
	ok, err := h.Open(ctx, storeURL, "prime")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := h.Calculate(ctx, types.RangeBlock(0, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)

	require.NoError(t, h.CloseStore(ctx))
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	network, opts := setup(t, api.Config{
		Kernel:     kernel.NewMonteCarlo(),
		Generation: types.Generation{Token: "gen-2"},
	})

	h, err := Dial(ctx, testAddr, opts)
	require.NoError(t, err)
	defer h.Close()

	assert.Error(t, h.Shutdown(ctx, "stale"))
	assert.True(t, network.Running(testAddr))

	require.NoError(t, h.Shutdown(ctx, "gen-2"))
	assert.Eventually(t, func() bool { return !network.Running(testAddr) }, 5*time.Second, 10*time.Millisecond)
}
