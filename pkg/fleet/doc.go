/*
Package fleet runs one computation across the selected nodes and monitors
them.

The Orchestrator ties the other packages together:

 1. For every node, concurrently, ask the controller for a live worker.
    An unreachable node prints "cannot connect to node NAME" and is skipped.
 2. Ask each reachable worker for its CPU count and start CPU count times
    Factor clients for it. Each client dials its own handle.
 3. Each client opens the workload session (the dedup store for primes),
    runs the push or pull loop, and closes the session.
 4. A progress reporter shows the percentage until every client is done.

Run returns a Summary with the reachable and unreachable node names, the
number of clients, blocks and failures, and the final progress counters.
If no node was reachable it returns ErrNoReachableNodes.

Monitor backs `flock stats`. It ensures a stats worker on every node, polls
Stats on a fixed interval and renders one table row per node, plus a row for
the controller itself marked *name*.
*/
package fleet
