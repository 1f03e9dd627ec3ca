/*
Package api implements the flock worker service: a small gRPC service that
runs one compute kernel on behalf of the fleet controller.

There are no generated stubs. The service descriptor is written by hand in
service.go and every message is a protobuf well-known type (Empty, Int64Value,
BoolValue, StringValue, Struct), so the wire format needs no .proto file and
no code generation step.

# Architecture

	┌──────────────── flock (controller host) ─────────────────┐
	│                                                            │
	│   fleet.Orchestrator ── N clients per node ──┐             │
	│                                              │             │
	│   client.Handle (one per client) ────────────┤             │
	└──────────────────────────────────────────────┼────────────┘
	                                               │ gRPC :18883 / :18882 / :18880
	┌──────────────── flock-worker (node) ─────────▼────────────┐
	│                                                            │
	│   grpc.Server                                              │
	│     └─ RequestInterceptor (metrics + debug log)            │
	│          └─ Server                                         │
	│               ├─ kernel.Kernel   (pi or prime)             │
	│               ├─ storage.Store   (opened on demand)        │
	│               └─ types.Generation (launch token)           │
	└────────────────────────────────────────────────────────────┘

# Methods

	CPUCount    Empty        -> Int64Value   logical CPUs of the node
	Calculate   Struct       -> Int64Value   run the kernel on one block
	Open        Struct       -> BoolValue    connect to the dedup store, true if it pings
	CloseStore  Empty        -> Empty        drop one store reference
	Generation  Empty        -> Struct       token, pid and start time
	Shutdown    StringValue  -> Empty        stop, if the token matches
	Stats       Empty        -> Struct       runtime snapshot for the stats table

Blocks travel as a Struct with a "kind" field. Size blocks carry "size";
range blocks carry "from" and "to" and describe the half-open interval
[from, to). EncodeBlock and DecodeBlock are the only code that knows the
field names.

# Dedup Store

Range kernels produce items (primes) that are written to a shared store so
that the answer is the number of distinct members. Several clients of one run
talk to the same worker process, so the store is reference counted: the first
Open connects, later Opens with the same URL and collection share the
connection, and the last CloseStore closes it. Opening a different store while
one is open fails with FailedPrecondition. A range block sent before Open is
refused rather than silently dropping its items.

# Generations

Every worker process is started with a generation token. Generation reports
it, and Shutdown only succeeds when the caller presents the same token, so a
controller can never stop a worker generation it did not observe. After a
successful Shutdown the response is delivered first and Done is closed; the
flock-worker binary then stops the server.

# Testing

The apitest subpackage serves any number of workers over in-memory bufconn
listeners keyed by address, and hands out a client.ContextDialer that routes
to them. Controller, fleet and health tests use it to exercise real RPCs
without opening ports.
*/
package api
