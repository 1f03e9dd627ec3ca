package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// SetKeyPrefix is the key namespace for dedup collections
	SetKeyPrefix = "/flock/sets/"

	// etcd rejects transactions above 128 operations by default
	maxTxnOps = 128
)

// EtcdStore implements Store on an etcd cluster. Each member is one key
// under SetKeyPrefix/<collection>/, so writes from many workers dedup
// naturally.
type EtcdStore struct {
	client *clientv3.Client
}

// NewEtcdStore connects to the given endpoints
func NewEtcdStore(ctx context.Context, endpoints []string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Context:     ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdStore{client: cli}, nil
}

func collectionPrefix(collection string) string {
	return SetKeyPrefix + collection + "/"
}

func etcdMemberKey(collection string, member int64) string {
	return collectionPrefix(collection) + strconv.FormatInt(member, 10)
}

// Add writes one key per member, batched into transactions
func (e *EtcdStore) Add(ctx context.Context, collection string, members ...int64) error {
	for start := 0; start < len(members); start += maxTxnOps {
		end := start + maxTxnOps
		if end > len(members) {
			end = len(members)
		}

		ops := make([]clientv3.Op, 0, end-start)
		for _, m := range members[start:end] {
			ops = append(ops, clientv3.OpPut(etcdMemberKey(collection, m), ""))
		}

		if _, err := e.client.Txn(ctx).Then(ops...).Commit(); err != nil {
			return fmt.Errorf("failed to add %d members to %s: %w", len(ops), collection, err)
		}
	}
	return nil
}

// Count returns the number of keys under the collection prefix
func (e *EtcdStore) Count(ctx context.Context, collection string) (int64, error) {
	resp, err := e.client.Get(ctx, collectionPrefix(collection), clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return resp.Count, nil
}

// Delete removes every key under the collection prefix
func (e *EtcdStore) Delete(ctx context.Context, collection string) error {
	if _, err := e.client.Delete(ctx, collectionPrefix(collection), clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("failed to delete %s: %w", collection, err)
	}
	return nil
}

// Ping checks that at least one endpoint answers
func (e *EtcdStore) Ping(ctx context.Context) error {
	endpoints := e.client.Endpoints()
	if len(endpoints) == 0 {
		return fmt.Errorf("no etcd endpoints")
	}
	var lastErr error
	for _, ep := range endpoints {
		if _, err := e.client.Status(ctx, ep); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("etcd unreachable: %w", lastErr)
}

// Close closes the client connection
func (e *EtcdStore) Close() error {
	return e.client.Close()
}
