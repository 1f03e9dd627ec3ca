/*
Package health probes fleet nodes without starting anything on them.

Two checkers are provided:

	TCPChecker     connects to host:port, used for the ssh port
	WorkerChecker  dials the worker service and reads its generation

CheckAll runs a set of checkers concurrently and returns one Result per
checker in input order. It backs `flock node list --check`:

	#  NAME  HOSTNAME   SSH  WORKER  DETAIL
	1  pi-1  10.0.0.11  up   up      generation 3f2a9c1d-... pid 812
	2  pi-2  10.0.0.12  up   down    worker not answering: ...

A checker never retries. Each check is bounded by its own timeout and by the
caller's context, whichever is shorter.
*/
package health
