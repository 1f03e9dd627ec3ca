package types

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeAddress(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
	}{
		{"pi-1.local", "pi-1.local:18883"},
		{"10.0.0.11", "10.0.0.11:18883"},
		{"::1", "[::1]:18883"},
		{"fe80::1", "[fe80::1]:18883"},
	}
	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			n := &Node{Hostname: tt.hostname}
			addr := n.Address(18883)
			assert.Equal(t, tt.want, addr)

			host, port, err := net.SplitHostPort(addr)
			require.NoError(t, err)
			assert.Equal(t, tt.hostname, host)
			assert.Equal(t, "18883", port)
		})
	}
}

func TestWorkerBindingCommand(t *testing.T) {
	n := &Node{Hostname: "pi-1.local", WorkerPath: "/home/pi/worker"}
	b := WorkerBinding{Entrypoint: "flock-worker", Kernel: "pi", Port: 18883}

	assert.Equal(t, "/home/pi/worker/flock-worker-18883.pid", b.PIDFile(n))
	assert.Equal(t,
		"/home/pi/worker/flock-worker --kernel pi --port 18883 --generation g1 --pid-file /home/pi/worker/flock-worker-18883.pid",
		b.Command(n, "g1"))
}
