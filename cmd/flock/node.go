package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/health"
	"github.com/cuemby/flock/pkg/transport"
	"github.com/cuemby/flock/pkg/types"
	"github.com/cuemby/flock/pkg/workload"
	"github.com/spf13/cobra"
)

// Node commands
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage cluster nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes in the cluster config",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := loadDirectory(cmd)
		if err != nil {
			return err
		}
		check, _ := cmd.Flags().GetBool("check")
		port, _ := cmd.Flags().GetInt("port")

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		if !check {
			fmt.Fprintln(w, "#\tNAME\tHOSTNAME\tUSER\tKEY FILE\tWORKER PATH")
			for _, n := range dir.Nodes() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", n.Index, n.Name, n.Hostname, n.Username, n.KeyFile, n.WorkerPath)
			}
			if c := dir.Controller(); c != nil {
				fmt.Fprintf(w, "*\t%s\t%s\t%s\t-\t-\n", c.Name, c.Hostname, c.Username)
			}
			return w.Flush()
		}

		// one ssh and one worker probe per node, run together
		nodes := dir.Nodes()
		checkers := make([]health.Checker, 0, 2*len(nodes))
		for _, n := range nodes {
			checkers = append(checkers,
				health.NewSSHChecker(n, transport.DefaultSSHPort),
				health.NewWorkerChecker(n, types.WorkerBinding{Port: port}, client.Options{}),
			)
		}
		results := health.CheckAll(cmd.Context(), checkers)

		fmt.Fprintln(w, "#\tNAME\tHOSTNAME\tSSH\tWORKER\tDETAIL")
		for i, n := range nodes {
			ssh, worker := results[2*i], results[2*i+1]
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", n.Index, n.Name, n.Hostname, status(ssh), status(worker), worker.Message)
		}
		return w.Flush()
	},
}

func status(r health.Result) string {
	if r.Healthy {
		return "up"
	}
	return "down"
}

var nodeExecCmd = &cobra.Command{
	Use:   "exec COMMAND",
	Short: "Run a command on every node",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line := strings.Join(args, " ")
		return forEachNode(cmd, func(t transport.Transport, n *types.Node) (string, error) {
			fmt.Printf("%s: exec %s\n", n, line)
			return t.Exec(cmd.Context(), n, line)
		})
	},
}

var nodeSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy the worker directory to every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachNode(cmd, func(t transport.Transport, n *types.Node) (string, error) {
			payload, _ := cmd.Flags().GetString("payload")
			fmt.Printf("%s: rsync %s\n", n, payload)
			return t.Sync(cmd.Context(), n, payload)
		})
	},
}

var nodePoweroffCmd = &cobra.Command{
	Use:   "poweroff",
	Short: "Power off every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachNode(cmd, func(t transport.Transport, n *types.Node) (string, error) {
			fmt.Printf("%s: exec sudo poweroff\n", n)
			return t.Exec(cmd.Context(), n, "sudo poweroff")
		})
	},
}

func init() {
	nodeCmd.AddCommand(nodeListCmd)
	nodeListCmd.Flags().Bool("check", false, "Probe the ssh port and the worker service of every node")
	nodeListCmd.Flags().Int("port", workload.PiPort, "Worker port probed by --check")
	nodeCmd.AddCommand(nodeExecCmd)
	nodeCmd.AddCommand(nodeSyncCmd)
	nodeCmd.AddCommand(nodePoweroffCmd)

	for _, cmd := range []*cobra.Command{nodeExecCmd, nodeSyncCmd, nodePoweroffCmd} {
		cmd.Flags().Int("start", 1, "Node index to start with")
		cmd.Flags().Int("count", 0, "Number of nodes to operate on (0 = all)")
	}
	nodeSyncCmd.Flags().String("payload", "", "Local directory to sync (default worker_path from the cluster config)")
}

// forEachNode runs fn on the selected nodes in order and prints its output.
// A failing node is reported and the remaining nodes still run.
func forEachNode(cmd *cobra.Command, fn func(transport.Transport, *types.Node) (string, error)) error {
	dir, err := loadDirectory(cmd)
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("payload"); f != nil && f.Value.String() == "" {
		_ = f.Value.Set(dir.WorkerPath())
	}

	start, _ := cmd.Flags().GetInt("start")
	count, _ := cmd.Flags().GetInt("count")

	t := transport.NewDefault()
	failed := 0
	for _, n := range dir.Select(start, count) {
		out, err := fn(t, n)
		if out != "" {
			fmt.Print(out)
		}
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", n.Name, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d node(s) failed", failed)
	}
	return nil
}
