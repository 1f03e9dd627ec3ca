/*
Package dispatch moves blocks of work from a client to its worker and
attributes the results.

Two modes exist, one per workload:

Push (pi). Every client keeps generating size blocks of the configured width
until the shared consumed counter reaches the target. Clients check the
counter before each block, so a run may overshoot by at most one block per
client.

	client 1 ──► [w] [w] [w] [w] ──┐
	client 2 ──► [w] [w] [w] ──────┼──► consumed ≥ target ⇒ stop
	client 3 ──► [w] [w] [w] [w] ──┘

Pull (primes). Partition splits [0, target) into half-open ranges of the
configured width before any client starts. Clients take ranges from a
shared Queue until it is empty; each range is handed out exactly once and
there is no overshoot.

	Queue: [0,10000) [10000,20000) ... [1990000,2000000)
	          ▲            ▲
	       client 1     client 2

A block that fails is logged, counted in Result.Failures and still added to
the consumed total with zero contribution. It is not retried, so progress
always reaches 100% and a run always terminates.

Both loops check their context between blocks and return when it is done.
*/
package dispatch
