package fleet

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/cuemby/flock/pkg/api"
	"github.com/cuemby/flock/pkg/client"
	"github.com/cuemby/flock/pkg/controller"
	"github.com/cuemby/flock/pkg/log"
	"github.com/cuemby/flock/pkg/types"
	"golang.org/x/sync/errgroup"
)

// DefaultStatsInterval is the polling cadence of the stats monitor
const DefaultStatsInterval = time.Second

const bytesPerKB = 1000

// MonitorConfig describes a stats monitor run
type MonitorConfig struct {
	Nodes      []*types.Node
	Controller *types.Controller
	Binding    types.WorkerBinding
	Options    controller.Options
	Interval   time.Duration
	Out        io.Writer
	// Clear redraws the table in place on a terminal
	Clear bool
}

type statsRow struct {
	index   int
	name    string
	stats   types.NodeStats
	status  string
	updated bool
}

// Monitor polls every node's worker for runtime stats and renders a table
// until its context is cancelled
type Monitor struct {
	cfg     MonitorConfig
	ensurer Ensurer

	mu   sync.Mutex
	rows []*statsRow
}

// NewMonitor creates a monitor with one row per node plus the controller row
func NewMonitor(ensurer Ensurer, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultStatsInterval
	}
	m := &Monitor{cfg: cfg, ensurer: ensurer}

	name := "controller"
	if cfg.Controller != nil && cfg.Controller.Name != "" {
		name = cfg.Controller.Name
	}
	m.rows = append(m.rows, &statsRow{index: 0, name: "*" + name + "*", status: "local"})
	for _, node := range cfg.Nodes {
		m.rows = append(m.rows, &statsRow{index: node.Index, name: node.Name, status: "starting"})
	}
	return m
}

// Run polls until ctx is cancelled. Cancellation is the normal way to stop.
func (m *Monitor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.pollLocal(gctx)
		return nil
	})
	for i, node := range m.cfg.Nodes {
		row := m.rows[i+1]
		node := node
		g.Go(func() error {
			m.pollNode(gctx, node, row)
			return nil
		})
	}
	g.Go(func() error {
		m.render(gctx)
		return nil
	})

	return g.Wait()
}

func (m *Monitor) pollLocal(ctx context.Context) {
	started := time.Now()
	for {
		st := api.RuntimeStats()
		st.Uptime = time.Since(started)
		m.update(m.rows[0], st, "local")

		if !sleep(ctx, m.cfg.Interval) {
			return
		}
	}
}

func (m *Monitor) pollNode(ctx context.Context, node *types.Node, row *statsRow) {
	logger := log.WithNode("monitor", node.Name)

	h, err := m.ensurer.Ensure(ctx, node, m.cfg.Binding, m.cfg.Options)
	if err != nil {
		logger.Debug().Err(err).Msg("Ensure failed")
		m.setStatus(row, fmt.Sprintf("cannot connect to node %s", node.Name))
		return
	}
	defer func() {
		if h != nil {
			_ = h.Close()
		}
	}()

	addr := node.Address(m.cfg.Binding.Port)
	for {
		if h == nil {
			h, err = client.Dial(ctx, addr, m.cfg.Options.Client)
			if err != nil {
				m.setStatus(row, "unreachable")
			}
		}
		if h != nil {
			st, err := h.Stats(ctx)
			if err != nil {
				logger.Debug().Err(err).Msg("Stats failed")
				m.setStatus(row, "unreachable")
				_ = h.Close()
				h = nil
			} else {
				m.update(row, st, "ok")
			}
		}

		if !sleep(ctx, m.cfg.Interval) {
			return
		}
	}
}

func (m *Monitor) update(row *statsRow, st types.NodeStats, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.stats = st
	row.status = status
	row.updated = true
}

// Snapshot returns the last stats of every row that has reported, keyed by
// row name
func (m *Monitor) Snapshot() map[string]types.NodeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]types.NodeStats, len(m.rows))
	for _, row := range m.rows {
		if row.updated {
			out[row.name] = row.stats
		}
	}
	return out
}

func (m *Monitor) setStatus(row *statsRow, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row.status = status
}

func (m *Monitor) render(ctx context.Context) {
	for {
		m.Render(m.cfg.Out)
		if !sleep(ctx, m.cfg.Interval) {
			return
		}
	}
}

// Render writes the current table to w
func (m *Monitor) Render(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Clear {
		fmt.Fprint(w, "\033[H\033[2J")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNODE\tHOST\tCPUS\tGOROUTINES\tHEAP\tSYS\tUPTIME\tKERNEL\tGENERATION\tSTORE\tSTATUS")
	for _, row := range m.rows {
		if !row.updated {
			fmt.Fprintf(tw, "%d\t%s\t-\t-\t-\t-\t-\t-\t-\t-\t-\t%s\n", row.index, row.name, row.status)
			continue
		}
		st := row.stats
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			row.index,
			row.name,
			st.Hostname,
			st.CPUCount,
			st.Goroutines,
			formatBytes(st.HeapBytes),
			formatBytes(st.SysBytes),
			st.Uptime.Truncate(time.Second),
			dash(st.Kernel),
			dash(shortToken(st.Generation)),
			st.StoreEnabled,
			row.status,
		)
	}
	_ = tw.Flush()
}

// sleep waits d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func formatBytes(size uint64) string {
	units := []string{"KB", "MB", "GB", "TB"}
	if size < bytesPerKB {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	unit := ""
	for _, u := range units {
		if value < bytesPerKB {
			break
		}
		value /= bytesPerKB
		unit = u
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
