/*
Package storage provides the dedup set store that workers write per-item
results into during pull-mode runs.

A Store holds named collections of int64 members. Adding a member twice is a
no-op, so the distinct count of a collection is the answer of a search
workload no matter how many times a block was processed.

# Backends

BoltStore keeps collections in a local BoltDB file, one bucket per
collection. It is meant for single-host fleets and for tests:

	store, err := storage.Open(ctx, "bolt:///var/lib/flock/results.db")

EtcdStore keeps one key per member under /flock/sets/<collection>/ on an
etcd cluster that every node can reach. Writes are batched into
transactions of at most 128 puts:

	store, err := storage.Open(ctx, "etcd://10.0.0.5:2379,10.0.0.6:2379")

The orchestrator opens the same URL to clear the collection before a run and
to count it afterwards; each worker opens it when a client calls Open.
*/
package storage
