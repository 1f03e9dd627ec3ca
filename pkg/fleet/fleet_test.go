package fleet

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/flock/pkg/api"
	"github.com/cuemby/flock/pkg/api/apitest"
	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/dispatch"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// networkEnsurer starts workers on demand on an in-memory network
type networkEnsurer struct {
	network *apitest.Network
	cpu     int
	down    map[string]bool

	mu      sync.Mutex
	ensured int
}

func (e *networkEnsurer) Ensure(ctx context.Context, node *types.Node, binding types.WorkerBinding, opts controller.Options) (*client.Handle, error) {
	if e.down[node.Name] {
		return nil, fmt.Errorf("%w: %s", controller.ErrNodeUnreachable, node.Name)
	}

	addr := node.Address(binding.Port)
	e.mu.Lock()
	e.ensured++
	if !e.network.Running(addr) {
		k, err := kernel.New(binding.Kernel)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.network.Serve(addr, api.Config{
			Kernel:     k,
			Generation: types.Generation{Token: "gen-" + node.Name},
			CPUCount:   e.cpu,
		})
	}
	e.mu.Unlock()

	return client.Dial(ctx, addr, opts.Client)
}

// storeSession opens a per-node bolt file for each client
type storeSession struct {
	dir string

	mu     sync.Mutex
	opened int
	closed int
}

func (s *storeSession) Open(ctx context.Context, h *client.Handle) error {
	host := strings.Split(h.Addr(), ":")[0]
	ok, err := h.Open(ctx, "bolt://"+filepath.Join(s.dir, host+".db"), "prime")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store ping failed")
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return nil
}

func (s *storeSession) Close(ctx context.Context, h *client.Handle) error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return h.CloseStore(ctx)
}

func testNodes(names ...string) []*types.Node {
	nodes := make([]*types.Node, 0, len(names))
	for i, name := range names {
		nodes = append(nodes, &types.Node{Index: i + 1, Name: name, Hostname: name + ".local"})
	}
	return nodes
}

func setup(t *testing.T, cpu int, down ...string) (*networkEnsurer, controller.Options) {
	t.Helper()
	network := apitest.NewNetwork()
	t.Cleanup(network.Close)

	e := &networkEnsurer{network: network, cpu: cpu, down: make(map[string]bool)}
	for _, name := range down {
		e.down[name] = true
	}
	return e, controller.Options{Client: client.Options{Dialer: network.Dial, ProbeTimeout: time.Second}}
}

func TestRunPush(t *testing.T) {
	e, opts := setup(t, 1)
	var warnings bytes.Buffer

	o, err := NewOrchestrator(e, Config{
		Nodes:      testNodes("pi-1", "pi-2"),
		Binding:    types.WorkerBinding{Kernel: kernel.MonteCarloName, Port: 18883},
		Mode:       dispatch.ModePush,
		Width:      100,
		Target:     1000,
		Factor:     1,
		Controller: opts,
		Warnings:   &warnings,
	})
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"pi-1", "pi-2"}, summary.Reachable)
	assert.Empty(t, summary.Unreachable)
	assert.Empty(t, warnings.String())
	assert.Equal(t, 2, summary.Clients)
	assert.Zero(t, summary.Failures)

	// at most one block of overshoot per client
	assert.GreaterOrEqual(t, summary.Consumed, int64(1000))
	assert.LessOrEqual(t, summary.Consumed, int64(1200))
	assert.LessOrEqual(t, summary.Completed, summary.Consumed)

	pi := 4 * float64(summary.Completed) / float64(summary.Consumed)
	assert.InDelta(t, 3.14, pi, 0.35)
}

func TestRunPullTilesExactly(t *testing.T) {
	e, opts := setup(t, 2)
	session := &storeSession{dir: t.TempDir()}

	o, err := NewOrchestrator(e, Config{
		Nodes:      testNodes("pi-1", "pi-2"),
		Binding:    types.WorkerBinding{Kernel: kernel.PrimesName, Port: 18882},
		Mode:       dispatch.ModePull,
		Width:      100,
		Target:     1000,
		Factor:     2,
		Controller: opts,
		Session:    session,
	})
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Clients)
	assert.Equal(t, 10, summary.Blocks)
	assert.Equal(t, int64(1000), summary.Consumed)
	assert.Equal(t, int64(168), summary.Completed)
	assert.Equal(t, 8, session.opened)
	assert.Equal(t, 8, session.closed)
}

func TestRunSkipsUnreachableNode(t *testing.T) {
	e, opts := setup(t, 1, "pi-2")
	var warnings bytes.Buffer

	o, err := NewOrchestrator(e, Config{
		Nodes:      testNodes("pi-1", "pi-2"),
		Binding:    types.WorkerBinding{Kernel: kernel.MonteCarloName, Port: 18883},
		Mode:       dispatch.ModePush,
		Width:      100,
		Target:     500,
		Factor:     1,
		Controller: opts,
		Warnings:   &warnings,
	})
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"pi-1"}, summary.Reachable)
	assert.Equal(t, []string{"pi-2"}, summary.Unreachable)
	assert.Equal(t, "cannot connect to node pi-2\n", warnings.String())
	assert.Equal(t, int64(500), summary.Consumed)
}

// closedEnsurer hands out handles that are already closed, so the CPU count
// of the node cannot be read
type closedEnsurer struct {
	*networkEnsurer
}

func (e closedEnsurer) Ensure(ctx context.Context, node *types.Node, binding types.WorkerBinding, opts controller.Options) (*client.Handle, error) {
	h, err := e.networkEnsurer.Ensure(ctx, node, binding, opts)
	if err != nil {
		return nil, err
	}
	_ = h.Close()
	return h, nil
}

func TestRunUnknownCapacityUsesOneClient(t *testing.T) {
	e, opts := setup(t, 2)

	o, err := NewOrchestrator(closedEnsurer{e}, Config{
		Nodes:      testNodes("pi-1"),
		Binding:    types.WorkerBinding{Kernel: kernel.MonteCarloName, Port: 18883},
		Mode:       dispatch.ModePush,
		Width:      100,
		Target:     500,
		Factor:     4,
		Controller: opts,
		Warnings:   &bytes.Buffer{},
	})
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"pi-1"}, summary.Reachable)
	assert.Equal(t, 1, summary.Clients)
	assert.Equal(t, int64(500), summary.Consumed)
}

func TestRunNoReachableNodes(t *testing.T) {
	e, opts := setup(t, 1, "pi-1")

	o, err := NewOrchestrator(e, Config{
		Nodes:      testNodes("pi-1"),
		Binding:    types.WorkerBinding{Kernel: kernel.MonteCarloName, Port: 18883},
		Mode:       dispatch.ModePush,
		Width:      100,
		Target:     500,
		Controller: opts,
		Warnings:   &bytes.Buffer{},
	})
	require.NoError(t, err)

	summary, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoReachableNodes)
	assert.Zero(t, summary.Consumed)
	assert.Contains(t, metrics.GetHealth().Components["fleet"], "unhealthy")
}

func TestNewOrchestratorInvalid(t *testing.T) {
	e, opts := setup(t, 1)

	_, err := NewOrchestrator(e, Config{Mode: dispatch.ModePull, Width: 0, Target: 10, Controller: opts})
	assert.ErrorIs(t, err, dispatch.ErrInvalidPartition)

	_, err = NewOrchestrator(e, Config{Mode: dispatch.ModePush, Width: 10, Target: -1, Controller: opts})
	assert.ErrorIs(t, err, dispatch.ErrInvalidPartition)

	_, err = NewOrchestrator(e, Config{Mode: "scatter", Width: 10, Target: 10, Controller: opts})
	assert.Error(t, err)
}

func TestMonitor(t *testing.T) {
	e, opts := setup(t, 4, "pi-2")
	var out bytes.Buffer

	m := NewMonitor(e, MonitorConfig{
		Nodes:      testNodes("pi-1", "pi-2"),
		Controller: &types.Controller{Name: "desk"},
		Binding:    types.WorkerBinding{Kernel: kernel.MonteCarloName, Port: 18880},
		Options:    opts,
		Interval:   10 * time.Millisecond,
		Out:        &bytes.Buffer{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	assert.Eventually(t, func() bool {
		var buf bytes.Buffer
		m.Render(&buf)
		return strings.Contains(buf.String(), "gen-pi-1")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	m.Render(&out)
	table := out.String()
	assert.Contains(t, table, "*desk*")
	assert.Contains(t, table, "cannot connect to node pi-2")
	assert.Contains(t, table, "GENERATION")

	snap := m.Snapshot()
	assert.Contains(t, snap, "*desk*")
	assert.Contains(t, snap, "pi-1")
	assert.NotContains(t, snap, "pi-2")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1500))
	assert.Equal(t, "2.0 MB", formatBytes(2000000))
	assert.Equal(t, "3.2 GB", formatBytes(3200000000))
}
