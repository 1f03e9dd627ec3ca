package e2e

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/dispatch"
	"github.com/cuemby/flock/pkg/fleet"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/transport"
	"github.com/cuemby/flock/pkg/types"
	"github.com/cuemby/flock/pkg/workload"
	"github.com/cuemby/flock/test/framework"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(t *testing.T) *controller.Controller {
	return controller.New(&transport.Local{Dir: t.TempDir(), Rsync: "rsync"})
}

func TestPiOnLocalWorker(t *testing.T) {
	binary := framework.WorkerBinary(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctrl := newController(t)
	node := framework.LocalNode(1, binary)
	binding := framework.Binding(binary, kernel.MonteCarloName, framework.FreePort(t))

	var warnings bytes.Buffer
	orchestrator, err := fleet.NewOrchestrator(ctrl, fleet.Config{
		Nodes:    []*types.Node{node},
		Binding:  binding,
		Mode:     dispatch.ModePush,
		Width:    10000,
		Target:   400000,
		Factor:   1,
		Warnings: &warnings,
	})
	require.NoError(t, err)

	summary, err := orchestrator.Run(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctrl.Stop(context.Background(), node, binding, controller.Options{})
	})

	assert.Empty(t, warnings.String())
	assert.Equal(t, []string{node.Name}, summary.Reachable)
	assert.Zero(t, summary.Failures)
	assert.GreaterOrEqual(t, summary.Consumed, int64(400000))

	pi := workload.Estimate(summary.Completed, summary.Consumed)
	assert.InDelta(t, math.Pi, pi, 0.05)
}

func TestPrimesOnLocalWorker(t *testing.T) {
	binary := framework.WorkerBinary(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctrl := newController(t)
	node := framework.LocalNode(1, binary)
	binding := framework.Binding(binary, kernel.PrimesName, framework.FreePort(t))
	primes := workload.NewPrimes("bolt://" + filepath.Join(t.TempDir(), "primes.db"))

	require.NoError(t, primes.Prepare(ctx))

	orchestrator, err := fleet.NewOrchestrator(ctrl, fleet.Config{
		Nodes:    []*types.Node{node},
		Binding:  binding,
		Mode:     dispatch.ModePull,
		Width:    1000,
		Target:   10000,
		Factor:   2,
		Session:  primes.Session(),
		Warnings: &bytes.Buffer{},
	})
	require.NoError(t, err)

	summary, err := orchestrator.Run(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctrl.Stop(context.Background(), node, binding, controller.Options{})
	})

	assert.Equal(t, 10, summary.Blocks)
	assert.Zero(t, summary.Failures)

	line, err := primes.Result(ctx, summary)
	require.NoError(t, err)
	assert.Contains(t, line, "Found 1229 out of 10000 prime numbers")
}

func TestControllerReusesRunningWorker(t *testing.T) {
	binary := framework.WorkerBinary(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	port := framework.FreePort(t)
	worker := framework.NewWorkerProcess(binary, kernel.MonteCarloName, port)
	require.NoError(t, worker.Start())
	t.Cleanup(func() { _ = worker.Stop() })

	waiter := framework.DefaultWaiter()
	require.NoError(t, waiter.WaitForWorker(ctx, worker.Addr(), worker.Generation))

	ctrl := newController(t)
	node := framework.LocalNode(1, binary)
	binding := framework.Binding(binary, kernel.MonteCarloName, port)

	h, err := ctrl.Ensure(ctx, node, binding, controller.Options{})
	require.NoError(t, err)
	gen, err := h.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, worker.Generation, gen.Token)
	require.NoError(t, h.Close())

	// a forced restart replaces the manually started worker
	h, err = ctrl.Ensure(ctx, node, binding, controller.Options{ForceRestart: true})
	require.NoError(t, err)
	defer h.Close()

	gen, err = h.Generation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, worker.Generation, gen.Token)

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	_ = worker.Wait(waitCtx)
	assert.True(t, worker.Exited())
	assert.Contains(t, worker.Logs(), "Shutdown requested by controller")

	require.NoError(t, ctrl.Stop(ctx, node, binding, controller.Options{}))
	require.NoError(t, waiter.WaitForWorkerGone(ctx, worker.Addr()))
}

func TestUnreachableNodeIsSkipped(t *testing.T) {
	binary := framework.WorkerBinary(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// the remote node has no usable key so every ssh call fails fast
	ctrl := controller.New(&transport.Router{
		Local:  &transport.Local{Dir: t.TempDir(), Rsync: "rsync"},
		Remote: transport.NewSSH(),
	})
	good := framework.LocalNode(1, binary)
	bad := &types.Node{
		Index:      2,
		Name:       "missing",
		Hostname:   "192.0.2.1",
		KeyFile:    filepath.Join(t.TempDir(), "id_missing"),
		WorkerPath: "/opt/flock",
	}
	binding := framework.Binding(binary, kernel.MonteCarloName, framework.FreePort(t))

	var warnings bytes.Buffer
	orchestrator, err := fleet.NewOrchestrator(ctrl, fleet.Config{
		Nodes:   []*types.Node{good, bad},
		Binding: binding,
		Mode:    dispatch.ModePush,
		Width:   10000,
		Target:  100000,
		Factor:  1,
		Controller: controller.Options{
			ConnectTimeout: 2 * time.Second,
		},
		Warnings: &warnings,
	})
	require.NoError(t, err)

	summary, err := orchestrator.Run(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctrl.Stop(context.Background(), good, binding, controller.Options{})
	})

	assert.Equal(t, []string{good.Name}, summary.Reachable)
	assert.Equal(t, []string{bad.Name}, summary.Unreachable)
	assert.Contains(t, warnings.String(), "cannot connect to node missing")
}
