package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Node represents a remote machine that can host a worker process.
// Nodes are created by the cluster directory and never modified afterwards.
type Node struct {
	Index      int    // 1-based position in the cluster config
	Name       string // Display name
	Hostname   string // Network address used for ssh and RPC
	Username   string
	KeyFile    string // Private key used for ssh and rsync
	WorkerPath string // Remote directory holding the worker payload
}

// UserHost returns the user@host form used by ssh and rsync
func (n *Node) UserHost() string {
	if n.Username == "" {
		return n.Hostname
	}
	return fmt.Sprintf("%s@%s", n.Username, n.Hostname)
}

// Address returns host:port for the given worker port. IPv6 hosts are
// bracketed.
func (n *Node) Address(port int) string {
	return net.JoinHostPort(n.Hostname, strconv.Itoa(port))
}

func (n *Node) String() string {
	return fmt.Sprintf("%s %s", n.Name, n.UserHost())
}

// Controller describes the local machine driving the fleet
type Controller struct {
	Name     string
	Hostname string
	Username string
}

// WorkerBinding pairs a worker payload with the port its service listens on.
// It is a stateless descriptor; many handles may be created from one binding.
type WorkerBinding struct {
	// PayloadPath is the local directory synced to every node
	PayloadPath string
	// Entrypoint is the worker binary name inside the remote worker path
	Entrypoint string
	// Kernel selects the computation the worker service runs
	Kernel string
	// Port is the fixed TCP port of the worker service
	Port int
}

// PIDFile returns the remote pid file path for this binding on a node
func (b WorkerBinding) PIDFile(node *Node) string {
	return fmt.Sprintf("%s/%s-%d.pid", node.WorkerPath, b.Entrypoint, b.Port)
}

// Command returns the remote command line that starts the worker service
func (b WorkerBinding) Command(node *Node, generation string) string {
	return fmt.Sprintf("%s/%s --kernel %s --port %d --generation %s --pid-file %s",
		node.WorkerPath, b.Entrypoint, b.Kernel, b.Port, generation, b.PIDFile(node))
}

// BlockKind distinguishes sized blocks from explicit ranges
type BlockKind string

const (
	BlockKindSize  BlockKind = "size"
	BlockKindRange BlockKind = "range"
)

// WorkBlock is one unit of dispatchable work: either a scalar size or the
// half-open range [From, To).
type WorkBlock struct {
	Kind BlockKind
	Size int64
	From int64
	To   int64
}

// SizeBlock returns a block that asks for size units of work
func SizeBlock(size int64) WorkBlock {
	return WorkBlock{Kind: BlockKindSize, Size: size}
}

// RangeBlock returns a block covering [from, to)
func RangeBlock(from, to int64) WorkBlock {
	return WorkBlock{Kind: BlockKindRange, From: from, To: to}
}

// Width returns the number of units the block represents
func (b WorkBlock) Width() int64 {
	if b.Kind == BlockKindRange {
		return b.To - b.From
	}
	return b.Size
}

func (b WorkBlock) String() string {
	if b.Kind == BlockKindRange {
		return fmt.Sprintf("[%d,%d)", b.From, b.To)
	}
	return fmt.Sprintf("size=%d", b.Size)
}

// Generation identifies one launch of a worker service
type Generation struct {
	Token     string
	PID       int
	StartedAt time.Time
}

// NodeStats is a point-in-time snapshot reported by a worker service
type NodeStats struct {
	Hostname     string
	CPUCount     int
	Goroutines   int
	HeapBytes    uint64
	SysBytes     uint64
	Uptime       time.Duration
	Kernel       string
	Generation   string
	StoreEnabled bool
}
