package main

import (
	"os"

	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/fleet"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/transport"
	"github.com/cuemby/flock/pkg/types"
	"github.com/cuemby/flock/pkg/workload"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live runtime stats for every node",
	Long: `Show live runtime stats for every node.

A stats worker is started on each node if none is answering, then polled
every second. The controller's own stats are shown on the first row.
Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := loadDirectory(cmd)
		if err != nil {
			return err
		}

		start, _ := cmd.Flags().GetInt("start")
		count, _ := cmd.Flags().GetInt("count")
		restart, _ := cmd.Flags().GetBool("restart")
		interval, _ := cmd.Flags().GetDuration("interval")
		payload, _ := cmd.Flags().GetString("payload")
		entrypoint, _ := cmd.Flags().GetString("entrypoint")

		ctx, cancel := signalContext()
		defer cancel()

		monitor := fleet.NewMonitor(controller.New(transport.NewDefault()), fleet.MonitorConfig{
			Nodes:      dir.Select(start, count),
			Controller: dir.Controller(),
			Binding: types.WorkerBinding{
				PayloadPath: payload,
				Entrypoint:  entrypoint,
				Kernel:      kernel.MonteCarloName,
				Port:        workload.StatsPort,
			},
			Options:  controller.Options{ForceRestart: restart},
			Interval: interval,
			Out:      os.Stdout,
			Clear:    term.IsTerminal(int(os.Stdout.Fd())),
		})

		collector := metrics.NewCollector(monitor, interval)
		collector.Start()
		defer collector.Stop()

		return monitor.Run(ctx)
	},
}

func init() {
	statsCmd.Flags().Int("start", 1, "Node index to start with")
	statsCmd.Flags().Int("count", 0, "Number of nodes to show (0 = all)")
	statsCmd.Flags().Bool("restart", false, "Force restart of the stats workers")
	statsCmd.Flags().Duration("interval", fleet.DefaultStatsInterval, "Polling interval")
	statsCmd.Flags().String("payload", "worker", "Local worker directory synced to every node")
	statsCmd.Flags().String("entrypoint", workload.DefaultEntrypoint, "Worker binary inside the remote worker path")
}
