package transport

import (
	"context"

	"github.com/cuemby/flock/pkg/types"
)

// Transport reaches a node to run commands and copy the worker payload
type Transport interface {
	// Exec runs a command on the node and returns its combined output
	Exec(ctx context.Context, node *types.Node, command string) (string, error)
	// Sync copies the local payload directory into the node's home directory.
	// Repeated syncs of an unchanged payload are no-ops.
	Sync(ctx context.Context, node *types.Node, localPath string) (string, error)
	// Launch starts command detached on the node and returns once it is running
	Launch(ctx context.Context, node *types.Node, command string) (LaunchHandle, error)
}

// LaunchHandle is the local handle on a detached remote process
type LaunchHandle interface {
	// PID returns the remote process id
	PID() int
	// Kill terminates the remote process
	Kill(ctx context.Context) error
}
