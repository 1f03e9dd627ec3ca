package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/flock/pkg/cluster"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var metricsServer *http.Server

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flock",
	Short: "Flock - run parallel workloads on a fleet of machines",
	Long: `Flock turns the machines listed in a cluster config into transient
compute workers. It starts a worker service on every node over ssh, sizes
the number of clients from each node's CPU count and fans a numeric
workload across them.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Flock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("cluster", "", fmt.Sprintf("Cluster config file (default $%s or %s)", cluster.ConfigEnv, cluster.DefaultConfigFilename))
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Show debug information")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve metrics and health endpoints on this address")

	rootCmd.AddCommand(piCmd)
	rootCmd.AddCommand(primeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(nodeCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	jsonOutput, _ := cmd.Flags().GetBool("log-json")

	level := log.WarnLevel
	if debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonOutput})

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr != "" {
		metrics.SetVersion(Version)
		metrics.SetCriticalComponents()
		var errCh <-chan error
		metricsServer, errCh = metrics.StartServer(metricsAddr)
		go func() {
			for err := range errCh {
				log.Logger.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
			}
		}()
		log.Logger.Debug().Str("addr", metricsAddr).Msg("Metrics server started")
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(ctx)
}

// loadDirectory reads the cluster config named by --cluster or its fallbacks
func loadDirectory(cmd *cobra.Command) (*cluster.Directory, error) {
	path, _ := cmd.Flags().GetString("cluster")
	path = cluster.ResolvePath(path)

	dir, err := cluster.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cannot find config %s file: %w", path, err)
	}
	return dir, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
