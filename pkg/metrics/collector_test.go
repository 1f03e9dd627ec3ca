package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/flock/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticSource map[string]types.NodeStats

func (s staticSource) Snapshot() map[string]types.NodeStats { return s }

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(staticSource{
		"pi-1": {Goroutines: 12, HeapBytes: 2048, SysBytes: 8192, Uptime: 90 * time.Second},
	}, time.Second)
	c.Collect()

	assert.Equal(t, 12.0, testutil.ToFloat64(NodeGoroutines.WithLabelValues("pi-1")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(NodeHeapBytes.WithLabelValues("pi-1")))
	assert.Equal(t, 8192.0, testutil.ToFloat64(NodeSysBytes.WithLabelValues("pi-1")))
	assert.Equal(t, 90.0, testutil.ToFloat64(NodeUptime.WithLabelValues("pi-1")))
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(staticSource{"pi-2": {Goroutines: 3}}, 10*time.Millisecond)
	c.Start()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(NodeGoroutines.WithLabelValues("pi-2")) == 3
	}, time.Second, 10*time.Millisecond)

	c.Stop()
	c.Stop()
}
