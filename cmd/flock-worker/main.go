package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/flock/pkg/api"
	"github.com/cuemby/flock/pkg/kernel"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/metrics"
	"github.com/cuemby/flock/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flock-worker",
	Short: "Flock worker service",
	Long: `The worker service runs on every node of the fleet. It serves one
compute kernel over gRPC on a fixed port until it is asked to shut down with
its own generation token or receives SIGTERM.`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Flock worker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("kernel", kernel.MonteCarloName, "Compute kernel to serve (pi or prime)")
	rootCmd.Flags().Int("port", 18883, "Port to listen on")
	rootCmd.Flags().String("bind", "0.0.0.0", "Address to listen on")
	rootCmd.Flags().String("generation", "", "Generation token assigned by the controller (random if empty)")
	rootCmd.Flags().String("pid-file", "", "Write the process id to this file")
	rootCmd.Flags().String("metrics-addr", "", "Serve metrics and health endpoints on this address")
	rootCmd.Flags().BoolP("debug", "d", false, "Show debug information")
	rootCmd.Flags().Bool("log-json", false, "Write logs as JSON")
}

func run(cmd *cobra.Command, args []string) error {
	kernelName, _ := cmd.Flags().GetString("kernel")
	port, _ := cmd.Flags().GetInt("port")
	bind, _ := cmd.Flags().GetString("bind")
	token, _ := cmd.Flags().GetString("generation")
	pidFile, _ := cmd.Flags().GetString("pid-file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	debug, _ := cmd.Flags().GetBool("debug")
	jsonOutput, _ := cmd.Flags().GetBool("log-json")

	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonOutput})

	k, err := kernel.New(kernelName)
	if err != nil {
		return err
	}
	if token == "" {
		token = uuid.NewString()
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write pid file: %w", err)
		}
		defer os.Remove(pidFile)
	}

	metrics.SetVersion(Version)
	if metricsAddr != "" {
		srv, errCh := metrics.StartServer(metricsAddr)
		go func() {
			for err := range errCh {
				log.Logger.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	server := api.NewServer(api.Config{
		Kernel:     k,
		Generation: types.Generation{Token: token},
	})

	addr := net.JoinHostPort(bind, strconv.Itoa(port))
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil {
			errCh <- err
		}
	}()

	logger := log.WithGeneration(token)
	logger.Info().Str("addr", addr).Str("kernel", kernelName).Msg("Worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-server.Done():
		logger.Info().Msg("Shutdown requested by controller")
	case err := <-errCh:
		metrics.UpdateComponent("rpc", false, err.Error())
		return fmt.Errorf("worker service error: %w", err)
	}

	server.Stop()
	logger.Info().Msg("Worker stopped")
	return nil
}
