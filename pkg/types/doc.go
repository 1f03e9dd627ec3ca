/*
Package types defines the data model shared by the flock orchestrator and the
flock worker service.

# Core Types

Node: a remote machine from the cluster directory. Nodes are immutable after
load and referenced, never owned, by the controller, the dispatcher and the
orchestrator.

WorkerBinding: a worker payload plus the fixed port its service listens on.
The binding also renders the remote command line and pid file path used when
launching and stopping a worker generation.

WorkBlock: one unit of dispatchable work. Push-mode blocks carry only a size;
pull-mode blocks carry a half-open range [From, To).

	types.SizeBlock(100000)        // "do 100000 samples"
	types.RangeBlock(0, 10000)     // "search [0, 10000)"

Generation: the token, pid and start time of one launch of a worker service.
A generation token is chosen by the controller at launch time and handed to
the worker on its command line, so a later shutdown can be confirmed against
the exact process that was started.

NodeStats: a snapshot returned by the worker Stats call and rendered by the
stats monitor.
*/
package types
