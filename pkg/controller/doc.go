/*
Package controller owns the lifecycle of worker processes on fleet nodes.

Ensure is the only entry point the rest of flock needs. Given a node and a
worker binding it returns a connected client handle, reusing a worker that is
already answering or launching a fresh generation when none is.

# Lifecycle

	             Ensure(node, binding, opts)
	                        │
	          ForceRestart? ├───── yes ────► Stop(node, binding)
	                        │                     │
	                        no                    │
	                        ▼                     │
	               dial host:port ── ok ──► reuse handle
	                        │
	                      fail
	                        ▼
	          ┌──── sync payload (rsync) ◄────────┘
	          │             │
	          │             ▼
	          │     launch "<path>/<entrypoint> --kernel K --port P
	          │             --generation G --pid-file F"
	          │             │
	          │             ▼
	          │     poll dial + Generation == G
	          │       every RetryInterval until ConnectTimeout
	          │             │
	          │     ok ─────┴───── timeout
	          │     │                 │
	          │     ▼                 ▼
	          │  handle         kill launch, ErrNodeUnreachable
	          │
	     sync fails ─────────► ErrNodeUnreachable

A worker is only reused when it answers a Generation probe; a port held by
something else does not count. After a launch the controller waits for the
exact token it handed out, so a stale worker from an earlier generation that
is still shutting down is never mistaken for the new one.

# Stop

Stop prefers the worker's own Shutdown method, which requires the token the
worker reports. If nothing answers, the pid file written at launch is used
to kill whatever is left:

	if [ -f F ]; then kill $(cat F); rm -f F; fi

Stop on a node with no worker is a no-op, not an error.

# Options

	ForceRestart    stop and relaunch even if a worker answers
	ConnectTimeout  how long to wait for a launched worker (default 10s)
	RetryInterval   polling cadence while waiting (default 250ms)
	StopTimeout     bound on kill and shutdown waits (default 5s)
	Client          request and probe timeouts for the returned handle

The controller is safe for concurrent use; the orchestrator calls Ensure for
every node at once.
*/
package controller
