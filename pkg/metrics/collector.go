package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/flock/pkg/types"
)

// StatsSource supplies the latest runtime stats keyed by node name
type StatsSource interface {
	Snapshot() map[string]types.NodeStats
}

// Collector copies node runtime stats into the node gauges
type Collector struct {
	source   StatsSource
	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
}

// NewCollector creates a collector sampling source every interval
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector. It is safe to call more than once.
func (c *Collector) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

// Collect samples the source once
func (c *Collector) Collect() {
	for name, st := range c.source.Snapshot() {
		NodeGoroutines.WithLabelValues(name).Set(float64(st.Goroutines))
		NodeHeapBytes.WithLabelValues(name).Set(float64(st.HeapBytes))
		NodeSysBytes.WithLabelValues(name).Set(float64(st.SysBytes))
		NodeUptime.WithLabelValues(name).Set(st.Uptime.Seconds())
	}
}
