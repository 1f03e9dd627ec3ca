package workload

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/flock/pkg/dispatch"
	"github.com/cuemby/flock/pkg/fleet"
	"github.com/cuemby/flock/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimate(t *testing.T) {
	assert.Zero(t, Estimate(10, 0))
	assert.InDelta(t, 3.12, Estimate(780, 1000), 1e-9)
	assert.InDelta(t, 4.0, Estimate(100, 100), 1e-9)
}

func TestPiDefinition(t *testing.T) {
	p := NewPi()
	width, target := p.Defaults()
	assert.Equal(t, int64(100000), width)
	assert.Equal(t, int64(400000000), target)
	assert.Equal(t, dispatch.ModePush, p.Mode())
	assert.Nil(t, p.Session())

	b := Binding(p, "./payload", "")
	assert.Equal(t, 18883, b.Port)
	assert.Equal(t, "pi", b.Kernel)
	assert.Equal(t, DefaultEntrypoint, b.Entrypoint)

	line, err := p.Result(context.Background(), &fleet.Summary{Completed: 785, Consumed: 1000, Elapsed: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "Found pi 3.14000000 from 1000 points completed time 1.50 seconds", line)
}

func TestPrimesLifecycle(t *testing.T) {
	ctx := context.Background()
	url := "bolt://" + filepath.Join(t.TempDir(), "primes.db")
	p := NewPrimes(url)

	width, target := p.Defaults()
	assert.Equal(t, int64(10000), width)
	assert.Equal(t, int64(2000000), target)
	assert.Equal(t, dispatch.ModePull, p.Mode())
	assert.Equal(t, 18882, Binding(p, "", "custom").Port)
	assert.NotNil(t, p.Session())

	// leftovers from an earlier run
	seed(t, url, 4, 6, 8)
	require.NoError(t, p.Prepare(ctx))
	assert.Equal(t, int64(0), count(t, url))

	seed(t, url, 2, 3, 5, 7, 3, 5)
	line, err := p.Result(ctx, &fleet.Summary{Target: 10, Elapsed: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Found 4 out of 10 prime numbers completed time 2.00 seconds", line)

	require.NoError(t, p.Finish(ctx))
	assert.Equal(t, int64(0), count(t, url))
}

func TestPrimesBadStore(t *testing.T) {
	p := NewPrimes("redis://localhost:6379")
	err := p.Prepare(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnsupportedStore)
}

func TestByName(t *testing.T) {
	w, err := ByName("pi", "")
	require.NoError(t, err)
	assert.Equal(t, "pi", w.Name())

	w, err = ByName("prime", "bolt:///tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, "prime", w.Name())

	_, err = ByName("fib", "")
	assert.Error(t, err)
}

func seed(t *testing.T, url string, members ...int64) {
	t.Helper()
	store, err := storage.Open(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(context.Background(), PrimesCollection, members...))
}

func count(t *testing.T, url string) int64 {
	t.Helper()
	store, err := storage.Open(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(context.Background(), PrimesCollection)
	require.NoError(t, err)
	return n
}
