/*
Package transport reaches fleet nodes to run commands, copy the worker
payload and launch detached worker processes.

SSH uses golang.org/x/crypto/ssh with the node's private key for Exec and
Launch, and the rsync binary over ssh for Sync. Local runs the same
operations on this machine with sh and rsync, which lets a laptop act as a
one-node fleet. Router picks Local for loopback hostnames and the remote
transport for everything else; NewDefault returns one wired to both.

Launch returns as soon as the process is running. It says nothing about
whether the worker service inside is listening yet; that is the
controller's job.
*/
package transport
