/*
Package metrics provides Prometheus metrics and health endpoints for the flock
orchestrator and the flock worker service.

All collectors are package-level variables registered in init, so any package
can record into them without plumbing a registry around:

	metrics.BlocksDispatched.WithLabelValues(node.Name, "pull").Inc()

	timer := metrics.NewTimer()
	count, err := handle.Calculate(ctx, block)
	timer.ObserveDurationVec(metrics.BlockDuration, "pull")

# Metric Families

Fleet: flock_nodes_reachable, flock_nodes_unreachable_total,
flock_clients_active.

Controller: flock_worker_launches_total, flock_connect_attempts_total,
flock_payload_syncs_total.

Dispatch: flock_blocks_dispatched_total, flock_block_failures_total,
flock_block_duration_seconds.

Progress: flock_progress_percent, flock_consumed_units,
flock_completed_units. These gauges are refreshed by the progress reporter.

Node runtime: flock_node_goroutines, flock_node_heap_bytes,
flock_node_sys_bytes, flock_node_uptime_seconds. A Collector samples any
StatsSource (the stats monitor is one) on a ticker.

Worker service: flock_worker_requests_total,
flock_worker_request_duration_seconds, recorded by the RPC interceptor.

# Health

The health registry tracks named components (rpc and store on the worker,
fleet on the orchestrator). GetReadiness only
considers the components passed to SetCriticalComponents. NewMux serves
/metrics, /health, /ready and /live on one handler; both binaries mount it
when --metrics-addr is set.
*/
package metrics
