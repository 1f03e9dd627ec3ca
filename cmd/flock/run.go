package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/fleet"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/progress"
	"github.com/cuemby/flock/pkg/transport"
	"github.com/cuemby/flock/pkg/workload"
	"github.com/spf13/cobra"
)

const (
	defaultStoreURL = "etcd://localhost:2379"
	finishTimeout   = 30 * time.Second
)

var piCmd = &cobra.Command{
	Use:   "pi",
	Short: "Estimate pi by Monte-Carlo sampling across the fleet",
	Long: `Estimate pi by Monte-Carlo sampling across the fleet.

Every client repeatedly asks its worker to sample a block of random points
and report how many fell inside the unit circle, until the requested number
of points has been sampled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkload(cmd, workload.NewPi())
	},
}

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Find every prime below a maximum across the fleet",
	Long: `Find every prime below a maximum across the fleet.

The range [0, max) is split into blocks before any worker starts. Clients
take blocks from the shared queue and workers write the primes they find to
a dedup store; the answer is the number of distinct members in the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		storeURL, _ := cmd.Flags().GetString("store")
		return runWorkload(cmd, workload.NewPrimes(storeURL))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{piCmd, primeCmd} {
		cmd.Flags().Int64P("block-count", "b", 0, "Number of numbers to send to each node per block (default depends on workload)")
		cmd.Flags().Int64P("max", "m", 0, "Max number to calculate (default depends on workload)")
		cmd.Flags().Int("start", 1, "Node index to start with")
		cmd.Flags().Int("count", 0, "Number of nodes to use as workers (0 = all)")
		cmd.Flags().Bool("restart", false, "Force restart of worker servers")
		cmd.Flags().Int("factor", fleet.DefaultParallelismFactor, "Clients started per worker CPU")
		cmd.Flags().Duration("connect-timeout", controller.DefaultConnectTimeout, "Time to wait for a worker to accept connections")
		cmd.Flags().Duration("request-timeout", client.DefaultRequestTimeout, "Timeout for each worker request")
		cmd.Flags().String("payload", "worker", "Local worker directory synced to every node")
		cmd.Flags().String("entrypoint", workload.DefaultEntrypoint, "Worker binary inside the remote worker path")
	}
	primeCmd.Flags().String("store", defaultStoreURL, "Dedup store shared by every worker (etcd://host:port or bolt:///path)")
}

func runWorkload(cmd *cobra.Command, w workload.Workload) error {
	dir, err := loadDirectory(cmd)
	if err != nil {
		return err
	}

	width, target := w.Defaults()
	if cmd.Flags().Changed("block-count") {
		width, _ = cmd.Flags().GetInt64("block-count")
	}
	if cmd.Flags().Changed("max") {
		target, _ = cmd.Flags().GetInt64("max")
	}
	start, _ := cmd.Flags().GetInt("start")
	count, _ := cmd.Flags().GetInt("count")
	restart, _ := cmd.Flags().GetBool("restart")
	factor, _ := cmd.Flags().GetInt("factor")
	connectTimeout, _ := cmd.Flags().GetDuration("connect-timeout")
	requestTimeout, _ := cmd.Flags().GetDuration("request-timeout")
	payload, _ := cmd.Flags().GetString("payload")
	entrypoint, _ := cmd.Flags().GetString("entrypoint")

	nodes := dir.Select(start, count)
	if restart {
		fmt.Println("will restart workers")
	}

	ctx, cancel := signalContext()
	defer cancel()

	orchestrator, err := fleet.NewOrchestrator(controller.New(transport.NewDefault()), fleet.Config{
		Nodes:   nodes,
		Binding: workload.Binding(w, payload, entrypoint),
		Mode:    w.Mode(),
		Width:   width,
		Target:  target,
		Factor:  factor,
		Controller: controller.Options{
			ForceRestart:   restart,
			ConnectTimeout: connectTimeout,
			Client:         client.Options{RequestTimeout: requestTimeout},
		},
		Session:  w.Session(),
		Reporter: progress.NewReporter,
		Warnings: os.Stdout,
	})
	if err != nil {
		return err
	}

	line, err := execute(ctx, w, orchestrator.Run)
	if err != nil {
		return err
	}
	fmt.Printf("\r%s\n", line)
	return nil
}

// execute prepares the workload, runs it and returns the result line. Once
// Prepare has succeeded Finish always runs, even when the run fails or is
// interrupted.
func execute(ctx context.Context, w workload.Workload, run func(context.Context) (*fleet.Summary, error)) (string, error) {
	if err := w.Prepare(ctx); err != nil {
		return "", fmt.Errorf("failed to prepare %s: %w", w.Name(), err)
	}
	defer func() {
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancel()
		if err := w.Finish(finishCtx); err != nil {
			log.Logger.Warn().Err(err).Str("workload", w.Name()).Msg("Cleanup failed")
		}
	}()

	summary, err := run(ctx)
	if errors.Is(err, fleet.ErrNoReachableNodes) {
		return "", errors.New("cannot connect to any workers")
	}
	if err != nil {
		return "", err
	}
	return w.Result(ctx, summary)
}
