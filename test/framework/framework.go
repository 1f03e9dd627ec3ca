// Package framework runs real flock-worker binaries on the local machine for
// end-to-end tests. Tests are skipped unless FLOCK_WORKER_BINARY points at a
// built worker.
package framework

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/flock/pkg/types"
)

// WorkerBinaryEnv names the environment variable holding the worker binary
const WorkerBinaryEnv = "FLOCK_WORKER_BINARY"

// WorkerBinary returns the absolute worker binary path or skips the test
func WorkerBinary(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	path := os.Getenv(WorkerBinaryEnv)
	if path == "" {
		t.Skipf("%s not set", WorkerBinaryEnv)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		t.Fatalf("invalid worker binary %s: %v", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		t.Skipf("worker binary not found: %v", err)
	}
	return abs
}

// FreePort returns a TCP port nothing is listening on right now
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// LocalNode describes this machine as a fleet node whose worker path is the
// directory holding binary
func LocalNode(index int, binary string) *types.Node {
	return &types.Node{
		Index:      index,
		Name:       fmt.Sprintf("local-%d", index),
		Hostname:   "127.0.0.1",
		WorkerPath: filepath.Dir(binary),
	}
}

// Binding returns a binding that launches binary without syncing a payload
func Binding(binary, kernel string, port int) types.WorkerBinding {
	return types.WorkerBinding{
		Entrypoint: filepath.Base(binary),
		Kernel:     kernel,
		Port:       port,
	}
}
